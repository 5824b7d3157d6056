package eventlog

import (
	"context"
	"iter"
	"sync"
	"time"
)

// Memory is an in-process Log. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	all     []RecordedEvent
	streams map[string][]int
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{streams: map[string][]int{}, now: time.Now}
}

func (m *Memory) Append(ctx context.Context, stream string, expected ExpectedVersion, events ...EventData) (AppendResult, error) {
	if err := ValidateAppend(stream, events); err != nil {
		return AppendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.streams[stream]
	if expected == NoStream && len(idx) > 0 {
		return AppendResult{}, ErrVersionConflict
	}

	recordedAt := m.now().UTC()
	res := AppendResult{FirstPosition: uint64(len(m.all)) + 1}
	for _, e := range events {
		rec := RecordedEvent{
			EventID:       e.EventID,
			StreamKey:     stream,
			StreamVersion: uint64(len(idx)),
			Position:      uint64(len(m.all)) + 1,
			Type:          e.Type,
			LocationID:    e.LocationID,
			OccurredAt:    e.OccurredAt,
			RecordedAt:    recordedAt,
			Data:          append([]byte(nil), e.Data...),
		}
		idx = append(idx, len(m.all))
		m.all = append(m.all, rec)
	}
	m.streams[stream] = idx
	res.LastPosition = uint64(len(m.all))
	res.NextVersion = uint64(len(idx))
	return res, nil
}

func (m *Memory) ReadStreamForward(ctx context.Context, stream string) iter.Seq2[RecordedEvent, error] {
	return func(yield func(RecordedEvent, error) bool) {
		for _, rec := range m.snapshotStream(stream) {
			if err := ctx.Err(); err != nil {
				yield(RecordedEvent{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *Memory) ReadStreamBackward(ctx context.Context, stream string, limit int) iter.Seq2[RecordedEvent, error] {
	return func(yield func(RecordedEvent, error) bool) {
		recs := m.snapshotStream(stream)
		n := 0
		for i := len(recs) - 1; i >= 0; i-- {
			if limit > 0 && n >= limit {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(RecordedEvent{}, err)
				return
			}
			if !yield(recs[i], nil) {
				return
			}
			n++
		}
	}
}

func (m *Memory) ReadAllForward(ctx context.Context, after uint64) iter.Seq2[RecordedEvent, error] {
	return func(yield func(RecordedEvent, error) bool) {
		m.mu.RLock()
		var recs []RecordedEvent
		if after < uint64(len(m.all)) {
			recs = append(recs, m.all[after:]...)
		}
		m.mu.RUnlock()

		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				yield(RecordedEvent{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *Memory) snapshotStream(stream string) []RecordedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.streams[stream]
	out := make([]RecordedEvent, len(idx))
	for i, j := range idx {
		out[i] = m.all[j]
	}
	return out
}
