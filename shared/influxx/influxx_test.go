package influxx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cafeteria-menu-system/shared/config"
)

func TestNewRequiresSettings(t *testing.T) {
	if _, err := New(config.Config{InfluxURL: "http://localhost:8086"}); err == nil {
		t.Fatalf("expected error for missing token/org/bucket")
	}
}

func TestWriteEventsSendsLineProtocol(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		body += string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(config.Config{
		InfluxURL:       srv.URL,
		InfluxToken:     "token",
		InfluxOrg:       "org",
		InfluxBucket:    "menu",
		InfluxTimeoutMS: 2000,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	err = c.WriteEvents(context.Background(), []EventPoint{{
		EventType:     "MenuItemAdded",
		AggregateType: "dailymenu",
		LocationID:    "loc-1",
		Position:      7,
		StreamVersion: 2,
		OccurredAt:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/api/v2/write" {
		t.Fatalf("unexpected requests: %v", paths)
	}
	for _, want := range []string{"menu_events,", "event_type=MenuItemAdded", "location_id=loc-1", "count=1i", "stream_version=2i"} {
		if !strings.Contains(body, want) {
			t.Fatalf("line protocol %q missing %q", body, want)
		}
	}
}

func TestWriteEventsUninitialized(t *testing.T) {
	c := &Client{}
	if err := c.WriteEvents(context.Background(), nil); err == nil {
		t.Fatalf("expected error for uninitialized client")
	}
}

func TestEventCountsFlux(t *testing.T) {
	q := eventCountsFlux("menu", time.Hour)
	for _, want := range []string{`from(bucket: "menu")`, "range(start: -3600s)", `r._measurement == "menu_events"`, "sum()"} {
		if !strings.Contains(q, want) {
			t.Fatalf("flux %q missing %q", q, want)
		}
	}
}
