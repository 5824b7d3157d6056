package mqx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/events"
)

func TestEnvelopeMessageRoundTrip(t *testing.T) {
	env := events.Envelope{
		EventID:       uuid.MustParse("0190b1a4-7d6e-7c3a-9b1d-3f2a1c0e5d01"),
		LocationID:    uuid.MustParse("2b1c7f0e-3c39-4c8e-9a43-2f1c0b6a4d11"),
		OccurredAt:    time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
		StreamKey:     "location-2b1c7f0e-3c39-4c8e-9a43-2f1c0b6a4d11",
		StreamVersion: 1,
		Position:      42,
		AggregateType: "location",
		EventType:     "LocationActivated",
		Payload:       json.RawMessage(`{"location_id":"2b1c7f0e-3c39-4c8e-9a43-2f1c0b6a4d11"}`),
	}

	msg, err := EnvelopeMessage(events.TopicMenuEvents, env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != env.LocationID.String() {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if Header(msg, events.HeaderPosition) != "42" || Header(msg, events.HeaderEventType) != "LocationActivated" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	if Header(msg, "missing") != "" {
		t.Fatalf("missing header should be empty")
	}

	got, err := DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != env.EventID || got.Position != 42 || got.StreamKey != env.StreamKey || !got.OccurredAt.Equal(env.OccurredAt) {
		t.Fatalf("unexpected envelope %+v", got)
	}
	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil || payload["location_id"] != env.LocationID.String() {
		t.Fatalf("payload not preserved: %s (%v)", got.Payload, err)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	msg, _ := EnvelopeMessage("t", events.Envelope{})
	msg.Value = []byte("not json")
	if _, err := DecodeEnvelope(msg); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(config.Config{}); err == nil {
		t.Fatalf("expected producer error")
	}
	if _, err := NewConsumer(config.Config{}, "", ""); err == nil {
		t.Fatalf("expected consumer error")
	}
	if _, err := NewConsumer(config.Config{KafkaBrokers: []string{"localhost:9092"}}, "", ""); err == nil {
		t.Fatalf("expected error for missing group")
	}
	p, err := NewProducer(config.Config{KafkaBrokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	if p.Topic() != events.TopicMenuEvents {
		t.Fatalf("unexpected default topic %q", p.Topic())
	}
	_ = p.Close()
}
