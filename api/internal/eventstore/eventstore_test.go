package eventstore

import (
	"context"
	"path/filepath"
	"testing"

	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/eventlog/eventlogtest"
	"cafeteria-menu-system/shared/config"
)

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{EventStore: config.EventStoreMemory}},
		{"sqlite", config.Config{EventStore: config.EventStoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "events.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer s.Close()
			if err := s.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if s.Pool != nil || s.Events != nil {
				t.Fatalf("postgres handles must be nil for %s", tt.name)
			}
			if _, err := s.Log.Append(ctx, "location-1", eventlog.NoStream, eventlogtest.Event("LocationCreated", `{}`)); err != nil {
				t.Fatalf("append: %v", err)
			}
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{EventStore: "cassandra"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{EventStore: config.EventStorePostgres}); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestNilStorePing(t *testing.T) {
	var s *Store
	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	s.Close()
}
