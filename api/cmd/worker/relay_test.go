package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"cafeteria-menu-system/api/internal/models"
	"cafeteria-menu-system/api/internal/repos"
	"cafeteria-menu-system/shared/events"
	"cafeteria-menu-system/shared/logx"
)

type failedMark struct {
	attempts int
	next     *time.Time
	lastErr  string
	dead     bool
}

type fakeOutbox struct {
	rows      map[uuid.UUID]models.OutboxEvent
	delivered []uuid.UUID
	failed    []failedMark
}

func (f *fakeOutbox) GetByID(_ context.Context, id uuid.UUID) (models.OutboxEvent, error) {
	row, ok := f.rows[id]
	if !ok {
		return models.OutboxEvent{}, errors.New("no rows in result set")
	}
	return row, nil
}

func (f *fakeOutbox) MarkDelivered(_ context.Context, id uuid.UUID) error {
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, _ uuid.UUID, attempts int, next *time.Time, lastErr string, dead bool) error {
	f.failed = append(f.failed, failedMark{attempts: attempts, next: next, lastErr: lastErr, dead: dead})
	return nil
}

type fakePublisher struct {
	err  error
	sent []events.Envelope
}

func (p *fakePublisher) PublishEnvelope(_ context.Context, env events.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, env)
	return nil
}

var fixedNow = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func newRelay(store *fakeOutbox, pub *fakePublisher, maxAttempts int) relay {
	return relay{
		store:  store,
		pub:    pub,
		policy: retryPolicy{Base: time.Second, Max: 30 * time.Second, MaxAttempts: maxAttempts},
		logger: logx.Discard(),
		now:    func() time.Time { return fixedNow },
	}
}

func outboxRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	env := events.Envelope{
		EventID:    uuid.New(),
		LocationID: uuid.New(),
		EventType:  "MenuItemAdded",
		Position:   7,
	}
	payload, err := sonic.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return models.OutboxEvent{
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   payload,
		Status:    repos.OutboxStatusSending,
		Attempts:  attempts,
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := retryPolicy{Base: 500 * time.Millisecond, Max: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, 2 * time.Second},
		{3, 4500 * time.Millisecond},
		{5, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.delay(tc.attempt); got != tc.want {
			t.Fatalf("delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDispatchDelivers(t *testing.T) {
	row := outboxRow(t, 0)
	store := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{row.EventID: row}}
	pub := &fakePublisher{}

	if err := newRelay(store, pub, 5).dispatch(context.Background(), row.EventID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].EventID != row.EventID || pub.sent[0].Position != 7 {
		t.Fatalf("unexpected published envelopes %+v", pub.sent)
	}
	if len(store.delivered) != 1 || len(store.failed) != 0 {
		t.Fatalf("expected one delivery, got delivered=%v failed=%v", store.delivered, store.failed)
	}
}

func TestDispatchSkipsFinishedRows(t *testing.T) {
	for _, status := range []string{repos.OutboxStatusDelivered, repos.OutboxStatusDead} {
		row := outboxRow(t, 0)
		row.Status = status
		store := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{row.EventID: row}}
		pub := &fakePublisher{}
		if err := newRelay(store, pub, 5).dispatch(context.Background(), row.EventID); err != nil {
			t.Fatalf("%s: dispatch: %v", status, err)
		}
		if len(pub.sent) != 0 || len(store.delivered) != 0 {
			t.Fatalf("%s: row should not be republished", status)
		}
	}
}

func TestDispatchFailureSchedulesRetry(t *testing.T) {
	row := outboxRow(t, 1)
	store := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{row.EventID: row}}
	pub := &fakePublisher{err: errors.New("broker down")}

	err := newRelay(store, pub, 5).dispatch(context.Background(), row.EventID)
	if err == nil {
		t.Fatalf("expected publish error")
	}
	if len(store.failed) != 1 {
		t.Fatalf("expected one failure mark, got %d", len(store.failed))
	}
	mark := store.failed[0]
	if mark.dead || mark.attempts != 2 || mark.lastErr != "broker down" {
		t.Fatalf("unexpected mark %+v", mark)
	}
	if mark.next == nil || !mark.next.Equal(fixedNow.Add(4*time.Second)) {
		t.Fatalf("unexpected next retry %v", mark.next)
	}
}

func TestDispatchDeadLettersAtMaxAttempts(t *testing.T) {
	row := outboxRow(t, 4)
	store := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{row.EventID: row}}
	pub := &fakePublisher{err: errors.New("broker down")}

	if err := newRelay(store, pub, 5).dispatch(context.Background(), row.EventID); err != nil {
		t.Fatalf("dead-lettered rows should not error, got %v", err)
	}
	if len(store.failed) != 1 || !store.failed[0].dead || store.failed[0].attempts != 5 {
		t.Fatalf("expected dead mark, got %+v", store.failed)
	}
}

func TestDispatchUndecodablePayloadGoesDead(t *testing.T) {
	row := outboxRow(t, 0)
	row.Payload = []byte("not json")
	store := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{row.EventID: row}}
	pub := &fakePublisher{}

	if err := newRelay(store, pub, 5).dispatch(context.Background(), row.EventID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("garbage payload must not be published")
	}
	if len(store.failed) != 1 || !store.failed[0].dead {
		t.Fatalf("expected dead mark, got %+v", store.failed)
	}
}
