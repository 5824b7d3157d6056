package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"cafeteria-menu-system/api/internal/models"
	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/dbx"
	"cafeteria-menu-system/shared/events"
	"cafeteria-menu-system/shared/observability"
)

// appendLockKey serializes appends so positions are handed out in commit
// order and readers never observe a gap that is later filled.
const appendLockKey int64 = 0x6d656e75

const readPageSize = 256

const pgUniqueViolation = "23505"

// EventsRepo is the Postgres event log. Every append also writes one outbox
// row per event in the same transaction.
type EventsRepo struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
	topic  string
	now    func() time.Time
}

func NewEventsRepo(pool *pgxpool.Pool, topic string) *EventsRepo {
	if topic == "" {
		topic = events.TopicMenuEvents
	}
	return &EventsRepo{pool: pool, outbox: NewOutboxRepo(pool), topic: topic, now: time.Now}
}

func (r *EventsRepo) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return dbx.Ping(ctx, r.pool)
}

func (r *EventsRepo) Append(ctx context.Context, stream string, expected eventlog.ExpectedVersion, evs ...eventlog.EventData) (res eventlog.AppendResult, err error) {
	if err := eventlog.ValidateAppend(stream, evs); err != nil {
		return eventlog.AppendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return eventlog.AppendResult{}, err
	}

	ctx, span := observability.StartSpan(ctx, "eventlog.append",
		attribute.String("eventlog.stream", stream),
		attribute.String("eventlog.expected", expected.String()),
		attribute.Int("eventlog.count", len(evs)),
	)
	defer func() { observability.EndSpan(span, err) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eventlog.AppendResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return eventlog.AppendResult{}, err
	}

	var current, lastPos int64
	if err = tx.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT MAX(stream_version) FROM events WHERE stream_key = $1), -1),
			COALESCE((SELECT MAX(position) FROM events), 0)
	`, stream).Scan(&current, &lastPos); err != nil {
		return eventlog.AppendResult{}, err
	}
	if expected == eventlog.NoStream && current >= 0 {
		err = eventlog.ErrVersionConflict
		return eventlog.AppendResult{}, err
	}

	recordedAt := r.now().UTC()
	aggregateType := domain.AggregateTypeOf(stream)
	version := current + 1
	pos := lastPos + 1
	res.FirstPosition = uint64(pos)
	for _, e := range evs {
		_, err = tx.Exec(ctx, `
			INSERT INTO events (
				position, event_id, stream_key, stream_version, event_type, aggregate_type, location_id, occurred_at, recorded_at, payload
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
			)
		`, pos, e.EventID, stream, version, e.Type, aggregateType, e.LocationID, e.OccurredAt.UTC(), recordedAt, e.Data)
		if err != nil {
			if isUniqueViolation(err) {
				err = eventlog.ErrVersionConflict
			}
			return eventlog.AppendResult{}, err
		}

		var payload []byte
		payload, err = sonic.Marshal(events.Envelope{
			EventID:       e.EventID,
			LocationID:    e.LocationID,
			OccurredAt:    e.OccurredAt.UTC(),
			StreamKey:     stream,
			StreamVersion: uint64(version),
			Position:      uint64(pos),
			AggregateType: aggregateType,
			EventType:     e.Type,
			Payload:       json.RawMessage(e.Data),
		})
		if err != nil {
			return eventlog.AppendResult{}, fmt.Errorf("encode envelope: %w", err)
		}
		if _, err = r.outbox.Insert(ctx, tx, models.OutboxEvent{
			EventID:    e.EventID,
			LocationID: e.LocationID,
			StreamKey:  stream,
			Position:   pos,
			EventType:  e.Type,
			Topic:      r.topic,
			Payload:    payload,
			CreatedAt:  recordedAt,
		}); err != nil {
			return eventlog.AppendResult{}, fmt.Errorf("insert outbox row: %w", err)
		}

		res.LastPosition = uint64(pos)
		version++
		pos++
	}
	res.NextVersion = uint64(version)

	if err = tx.Commit(ctx); err != nil {
		return eventlog.AppendResult{}, err
	}
	return res, nil
}

func (r *EventsRepo) ReadStreamForward(ctx context.Context, stream string) iter.Seq2[eventlog.RecordedEvent, error] {
	return r.paged(ctx, -1, func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
		return r.query(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE stream_key = $1 AND stream_version > $2
			ORDER BY stream_version ASC LIMIT $3
		`, stream, cursor, readPageSize)
	}, byStreamVersion)
}

func (r *EventsRepo) ReadStreamBackward(ctx context.Context, stream string, limit int) iter.Seq2[eventlog.RecordedEvent, error] {
	pageSize := readPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}
	return func(yield func(eventlog.RecordedEvent, error) bool) {
		n := 0
		inner := r.paged(ctx, int64(^uint64(0)>>1), func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
			return r.query(ctx, `
				SELECT `+eventColumns+` FROM events
				WHERE stream_key = $1 AND stream_version < $2
				ORDER BY stream_version DESC LIMIT $3
			`, stream, cursor, pageSize)
		}, byStreamVersion)
		for rec, err := range inner {
			if limit > 0 && n >= limit {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
			n++
		}
	}
}

func (r *EventsRepo) ReadAllForward(ctx context.Context, after uint64) iter.Seq2[eventlog.RecordedEvent, error] {
	return r.paged(ctx, int64(after), func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
		return r.query(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE position > $1
			ORDER BY position ASC LIMIT $2
		`, cursor, readPageSize)
	}, byPosition)
}

// LastPosition is the head of the global log, 0 when it is empty.
func (r *EventsRepo) LastPosition(ctx context.Context) (uint64, error) {
	var pos int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM events`).Scan(&pos); err != nil {
		return 0, err
	}
	return uint64(pos), nil
}

const eventColumns = `position, event_id, stream_key, stream_version, event_type, location_id, occurred_at, recorded_at, payload`

func byStreamVersion(rec eventlog.RecordedEvent) int64 { return int64(rec.StreamVersion) }

func byPosition(rec eventlog.RecordedEvent) int64 { return int64(rec.Position) }

// paged reads whole pages before yielding so no connection is held while
// the caller folds events.
func (r *EventsRepo) paged(ctx context.Context, start int64, fetch func(context.Context, int64) ([]eventlog.RecordedEvent, error), key func(eventlog.RecordedEvent) int64) iter.Seq2[eventlog.RecordedEvent, error] {
	return func(yield func(eventlog.RecordedEvent, error) bool) {
		cursor := start
		for {
			if err := ctx.Err(); err != nil {
				yield(eventlog.RecordedEvent{}, err)
				return
			}
			page, err := fetch(ctx, cursor)
			if err != nil {
				yield(eventlog.RecordedEvent{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				cursor = key(rec)
			}
			if len(page) == 0 || len(page) < readPageSize {
				return
			}
		}
	}
}

func (r *EventsRepo) query(ctx context.Context, q string, args ...any) ([]eventlog.RecordedEvent, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventlog.RecordedEvent
	for rows.Next() {
		var (
			rec          eventlog.RecordedEvent
			pos, version int64
		)
		if err := rows.Scan(&pos, &rec.EventID, &rec.StreamKey, &version, &rec.Type, &rec.LocationID, &rec.OccurredAt, &rec.RecordedAt, &rec.Data); err != nil {
			return nil, err
		}
		rec.Position = uint64(pos)
		rec.StreamVersion = uint64(version)
		rec.OccurredAt = rec.OccurredAt.UTC()
		rec.RecordedAt = rec.RecordedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
