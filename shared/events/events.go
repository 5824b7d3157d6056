package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire shape of an appended event on the message bus.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	LocationID    uuid.UUID       `json:"location_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	StreamKey     string          `json:"stream_key"`
	StreamVersion uint64          `json:"stream_version"`
	Position      uint64          `json:"position"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicMenuEvents = "cafeteria.menu.events"
)

const (
	HeaderEventType = "event_type"
	HeaderStreamKey = "stream_key"
	HeaderPosition  = "position"
)
