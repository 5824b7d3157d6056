package sqlitelog

import (
	"context"
	"path/filepath"
	"testing"

	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/eventlog/eventlogtest"
)

func TestSQLiteContract(t *testing.T) {
	eventlogtest.Run(t, func(t *testing.T) eventlog.Log {
		log, err := Open(filepath.Join(t.TempDir(), "events.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = log.Close() })
		return log
	})
}

func TestSQLiteMemoryDatabase(t *testing.T) {
	log, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()
	if _, err := log.Append(context.Background(), "location-1", eventlog.NoStream, eventlogtest.Event("LocationCreated", `{"a":1}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	recs, err := eventlog.Collect(log.ReadAllForward(context.Background(), 0))
	if err != nil || len(recs) != 1 || recs[0].Position != 1 {
		t.Fatalf("unexpected read: %+v %v", recs, err)
	}
}
