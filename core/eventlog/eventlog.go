// Package eventlog defines the append-only event log the domain core is
// written against.
package eventlog

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVersionConflict = errors.New("version conflict")
	ErrEmptyAppend     = errors.New("append requires at least one event")
	ErrInvalidStream   = errors.New("invalid stream key")
)

// ExpectedVersion is the optimistic-concurrency expectation of an append.
type ExpectedVersion int

const (
	// Any appends regardless of the stream's current version.
	Any ExpectedVersion = iota
	// NoStream requires that the stream has no events yet.
	NoStream
)

func (v ExpectedVersion) String() string {
	switch v {
	case NoStream:
		return "no_stream"
	default:
		return "any"
	}
}

// EventData is an event ready to be appended.
type EventData struct {
	EventID    uuid.UUID
	Type       string
	LocationID uuid.UUID
	OccurredAt time.Time
	Data       []byte
}

// RecordedEvent is an event as stored. StreamVersion starts at 0 within a
// stream; Position starts at 1 across the whole log.
type RecordedEvent struct {
	EventID       uuid.UUID
	StreamKey     string
	StreamVersion uint64
	Position      uint64
	Type          string
	LocationID    uuid.UUID
	OccurredAt    time.Time
	RecordedAt    time.Time
	Data          []byte
}

type AppendResult struct {
	// NextVersion is the stream version the next appended event would get.
	NextVersion   uint64
	FirstPosition uint64
	LastPosition  uint64
}

// Log is implemented by every event store backend. Reading a stream that
// does not exist yields an empty sequence. Sequences stop at the first
// error, which is yielded as the final element.
type Log interface {
	Append(ctx context.Context, stream string, expected ExpectedVersion, events ...EventData) (AppendResult, error)
	ReadStreamForward(ctx context.Context, stream string) iter.Seq2[RecordedEvent, error]
	ReadStreamBackward(ctx context.Context, stream string, limit int) iter.Seq2[RecordedEvent, error]
	ReadAllForward(ctx context.Context, after uint64) iter.Seq2[RecordedEvent, error]
}

// ValidateAppend checks arguments shared by every backend.
func ValidateAppend(stream string, events []EventData) error {
	if stream == "" {
		return ErrInvalidStream
	}
	if len(events) == 0 {
		return ErrEmptyAppend
	}
	for _, e := range events {
		if e.Type == "" || e.EventID == uuid.Nil {
			return errors.New("event requires id and type")
		}
	}
	return nil
}

// Collect drains a sequence into a slice.
func Collect(seq iter.Seq2[RecordedEvent, error]) ([]RecordedEvent, error) {
	var out []RecordedEvent
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Last returns the newest event of a stream, using a backward read of one.
func Last(ctx context.Context, log Log, stream string) (RecordedEvent, bool, error) {
	for rec, err := range log.ReadStreamBackward(ctx, stream, 1) {
		if err != nil {
			return RecordedEvent{}, false, err
		}
		return rec, true, nil
	}
	return RecordedEvent{}, false, nil
}
