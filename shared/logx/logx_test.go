package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLoggerWritesEventAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "api", "test", "v1", "info")

	ctx := WithRequestID(context.Background(), "req-1")
	l.Info(ctx, "location_created", "location created", slog.String("location_id", "abc"))

	if n := bytes.Count(buf.Bytes(), []byte(`"event":`)); n != 1 {
		t.Fatalf("expected one event key, got %d in %s", n, buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["event"] != "location_created" {
		t.Fatalf("unexpected event: %v", line["event"])
	}
	if line["message"] != "location created" {
		t.Fatalf("unexpected message: %v", line["message"])
	}
	if line["request_id"] != "req-1" {
		t.Fatalf("missing request id: %v", line)
	}
	if line["service"] != "api" || line["version"] != "v1" {
		t.Fatalf("missing base attrs: %v", line)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "api", "test", "", "warn")
	l.Info(context.Background(), "ignored", "below level")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
	l.Warn(context.Background(), "kept", "at level")
	if buf.Len() == 0 {
		t.Fatalf("expected warn to be written")
	}
}

func TestZeroLoggerIsSilent(t *testing.T) {
	var l Logger
	l.Error(context.Background(), "noop", "zero value logger")
}
