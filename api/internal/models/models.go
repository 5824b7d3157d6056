package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one appended event waiting to be relayed to the bus.
// Payload holds the encoded events.Envelope.
type OutboxEvent struct {
	EventID     uuid.UUID
	LocationID  uuid.UUID
	StreamKey   string
	Position    int64
	EventType   string
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int
	NextRetryAt *time.Time
	LockedAt    *time.Time
	LockedBy    *string
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

type AuditLog struct {
	AuditID      int64
	OccurredAt   time.Time
	LocationID   *uuid.UUID
	DeviceID     *uuid.UUID
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
