// Package eventlogtest holds the behavioural contract every eventlog.Log
// backend must satisfy.
package eventlogtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/eventlog"
)

// Factory returns an empty log for one subtest.
type Factory func(t *testing.T) eventlog.Log

func Run(t *testing.T, newLog Factory) {
	t.Run("NoStreamRejectsExistingStream", func(t *testing.T) { testNoStream(t, newLog(t)) })
	t.Run("AnyAppendsInOrder", func(t *testing.T) { testAnyAppends(t, newLog(t)) })
	t.Run("MissingStreamIsEmpty", func(t *testing.T) { testMissingStream(t, newLog(t)) })
	t.Run("ReadBackwardLimit", func(t *testing.T) { testReadBackward(t, newLog(t)) })
	t.Run("ReadAllGlobalOrder", func(t *testing.T) { testReadAll(t, newLog(t)) })
	t.Run("ConcurrentNoStreamSingleWinner", func(t *testing.T) { testConcurrentCreate(t, newLog(t)) })
	t.Run("CancelledAppendWritesNothing", func(t *testing.T) { testCancelled(t, newLog(t)) })
	t.Run("EarlyBreakStopsIteration", func(t *testing.T) { testEarlyBreak(t, newLog(t)) })
}

// Event builds a test event with a JSON payload.
func Event(typ string, body string) eventlog.EventData {
	return eventlog.EventData{
		EventID:    uuid.New(),
		Type:       typ,
		LocationID: uuid.New(),
		OccurredAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Data:       []byte(body),
	}
}

func testNoStream(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	if _, err := log.Append(ctx, "location-a", eventlog.NoStream, Event("LocationCreated", `{"n":1}`)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	_, err := log.Append(ctx, "location-a", eventlog.NoStream, Event("LocationCreated", `{"n":2}`))
	if !errors.Is(err, eventlog.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	recs := mustCollect(t, log.ReadStreamForward(ctx, "location-a"))
	if len(recs) != 1 {
		t.Fatalf("conflicting append must not write, got %d events", len(recs))
	}
}

func testAnyAppends(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	first := Event("A", `{"n":1}`)
	res, err := log.Append(ctx, "dailymenu-x", eventlog.Any, first, Event("B", `{"n":2}`))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.NextVersion != 2 || res.LastPosition != res.FirstPosition+1 {
		t.Fatalf("unexpected append result %+v", res)
	}
	if _, err := log.Append(ctx, "dailymenu-x", eventlog.Any, Event("C", `{"n":3}`)); err != nil {
		t.Fatalf("append any: %v", err)
	}

	recs := mustCollect(t, log.ReadStreamForward(ctx, "dailymenu-x"))
	if got := types(recs); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected order %v", got)
	}
	for i, rec := range recs {
		if rec.StreamVersion != uint64(i) {
			t.Fatalf("event %d has stream version %d", i, rec.StreamVersion)
		}
		if rec.StreamKey != "dailymenu-x" {
			t.Fatalf("unexpected stream key %q", rec.StreamKey)
		}
	}
	if recs[0].EventID != first.EventID || recs[0].LocationID != first.LocationID || !recs[0].OccurredAt.Equal(first.OccurredAt) {
		t.Fatalf("metadata not preserved: %+v", recs[0])
	}
	assertJSONEqual(t, recs[0].Data, first.Data)
}

func testMissingStream(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	if recs := mustCollect(t, log.ReadStreamForward(ctx, "location-none")); len(recs) != 0 {
		t.Fatalf("expected empty stream, got %d", len(recs))
	}
	if _, ok, err := eventlog.Last(ctx, log, "location-none"); err != nil || ok {
		t.Fatalf("expected no last event, got ok=%v err=%v", ok, err)
	}
}

func testReadBackward(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := log.Append(ctx, "s", eventlog.Any, Event(fmt.Sprintf("E%d", i), `{}`)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recs := mustCollect(t, log.ReadStreamBackward(ctx, "s", 2))
	if got := types(recs); !reflect.DeepEqual(got, []string{"E3", "E2"}) {
		t.Fatalf("unexpected backward read %v", got)
	}
	last, ok, err := eventlog.Last(ctx, log, "s")
	if err != nil || !ok || last.Type != "E3" {
		t.Fatalf("unexpected last event %+v ok=%v err=%v", last, ok, err)
	}
	if all := mustCollect(t, log.ReadStreamBackward(ctx, "s", 0)); len(all) != 4 {
		t.Fatalf("limit 0 should read the whole stream, got %d", len(all))
	}
}

func testReadAll(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	appends := []struct{ stream, typ string }{
		{"location-1", "L1"}, {"device-1", "D1"}, {"location-1", "L2"}, {"location-2", "L3"},
	}
	for _, a := range appends {
		if _, err := log.Append(ctx, a.stream, eventlog.Any, Event(a.typ, `{}`)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recs := mustCollect(t, log.ReadAllForward(ctx, 0))
	if got := types(recs); !reflect.DeepEqual(got, []string{"L1", "D1", "L2", "L3"}) {
		t.Fatalf("unexpected global order %v", got)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Position <= recs[i-1].Position {
			t.Fatalf("positions not increasing: %d then %d", recs[i-1].Position, recs[i].Position)
		}
	}
	tail := mustCollect(t, log.ReadAllForward(ctx, recs[1].Position))
	if got := types(tail); !reflect.DeepEqual(got, []string{"L2", "L3"}) {
		t.Fatalf("unexpected tail %v", got)
	}
}

func testConcurrentCreate(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(ctx, "location-race", eventlog.NoStream, Event("LocationCreated", `{}`))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, eventlog.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner, got %d successes %d conflicts", successes, conflicts)
	}
}

func testCancelled(t *testing.T, log eventlog.Log) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := log.Append(ctx, "location-c", eventlog.NoStream, Event("LocationCreated", `{}`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if recs := mustCollect(t, log.ReadStreamForward(context.Background(), "location-c")); len(recs) != 0 {
		t.Fatalf("cancelled append must not write, got %d", len(recs))
	}
}

func testEarlyBreak(t *testing.T, log eventlog.Log) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, "s", eventlog.Any, Event("E", `{}`)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n := 0
	for _, err := range log.ReadAllForward(ctx, 0) {
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected to stop after one event")
	}
	// the log must stay usable after an abandoned iteration
	if _, err := log.Append(ctx, "s", eventlog.Any, Event("E", `{}`)); err != nil {
		t.Fatalf("append after break: %v", err)
	}
}

func mustCollect(t *testing.T, seq iter.Seq2[eventlog.RecordedEvent, error]) []eventlog.RecordedEvent {
	t.Helper()
	recs, err := eventlog.Collect(seq)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return recs
}

func types(recs []eventlog.RecordedEvent) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Type
	}
	return out
}

func assertJSONEqual(t *testing.T, got, want []byte) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("stored payload is not json: %v", err)
	}
	if err := json.Unmarshal(want, &w); err != nil {
		t.Fatalf("expected payload is not json: %v", err)
	}
	if !reflect.DeepEqual(g, w) {
		t.Fatalf("payload mismatch: got %s want %s", got, want)
	}
}
