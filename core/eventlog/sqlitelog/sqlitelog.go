// Package sqlitelog is a single-node eventlog.Log backed by SQLite.
package sqlitelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"cafeteria-menu-system/core/eventlog"
)

const pageSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS events (
	position       INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       TEXT    NOT NULL UNIQUE,
	stream_key     TEXT    NOT NULL,
	stream_version INTEGER NOT NULL,
	event_type     TEXT    NOT NULL,
	location_id    TEXT    NOT NULL,
	occurred_at    INTEGER NOT NULL,
	recorded_at    INTEGER NOT NULL,
	payload        BLOB    NOT NULL,
	UNIQUE (stream_key, stream_version)
);
CREATE INDEX IF NOT EXISTS events_type_idx ON events (event_type);
`

type Log struct {
	db *sql.DB
}

var _ eventlog.Log = (*Log)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory log.
func Open(path string) (*Log, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time keeps positions in commit order; it is also
	// required for :memory:, where every connection is a separate database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Log) Append(ctx context.Context, stream string, expected eventlog.ExpectedVersion, events ...eventlog.EventData) (res eventlog.AppendResult, err error) {
	if err := eventlog.ValidateAppend(stream, events); err != nil {
		return eventlog.AppendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return eventlog.AppendResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.AppendResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(stream_version), -1) FROM events WHERE stream_key = ?`, stream).Scan(&current); err != nil {
		return eventlog.AppendResult{}, err
	}
	if expected == eventlog.NoStream && current >= 0 {
		err = eventlog.ErrVersionConflict
		return eventlog.AppendResult{}, err
	}

	recordedAt := time.Now().UTC().UnixMilli()
	next := current + 1
	for i, e := range events {
		var pos int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO events (event_id, stream_key, stream_version, event_type, location_id, occurred_at, recorded_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING position`,
			e.EventID.String(), stream, next, e.Type, e.LocationID.String(), e.OccurredAt.UTC().UnixMilli(), recordedAt, e.Data,
		).Scan(&pos)
		if err != nil {
			if isUniqueViolation(err) {
				err = eventlog.ErrVersionConflict
			}
			return eventlog.AppendResult{}, err
		}
		if i == 0 {
			res.FirstPosition = uint64(pos)
		}
		res.LastPosition = uint64(pos)
		next++
	}
	res.NextVersion = uint64(next)

	if err = tx.Commit(); err != nil {
		return eventlog.AppendResult{}, err
	}
	return res, nil
}

func (l *Log) ReadStreamForward(ctx context.Context, stream string) iter.Seq2[eventlog.RecordedEvent, error] {
	return paged(ctx, func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
		return l.query(ctx, `
			SELECT `+columns+` FROM events
			WHERE stream_key = ? AND stream_version > ?
			ORDER BY stream_version ASC LIMIT ?`, stream, cursor, pageSize)
	}, -1, func(r eventlog.RecordedEvent) int64 { return int64(r.StreamVersion) })
}

func (l *Log) ReadStreamBackward(ctx context.Context, stream string, limit int) iter.Seq2[eventlog.RecordedEvent, error] {
	return func(yield func(eventlog.RecordedEvent, error) bool) {
		n := 0
		inner := paged(ctx, func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
			return l.query(ctx, `
				SELECT `+columns+` FROM events
				WHERE stream_key = ? AND stream_version < ?
				ORDER BY stream_version DESC LIMIT ?`, stream, cursor, pageSize)
		}, int64(^uint64(0)>>1), func(r eventlog.RecordedEvent) int64 { return int64(r.StreamVersion) })
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

func (l *Log) ReadAllForward(ctx context.Context, after uint64) iter.Seq2[eventlog.RecordedEvent, error] {
	return paged(ctx, func(ctx context.Context, cursor int64) ([]eventlog.RecordedEvent, error) {
		return l.query(ctx, `
			SELECT `+columns+` FROM events
			WHERE position > ?
			ORDER BY position ASC LIMIT ?`, cursor, pageSize)
	}, int64(after), func(r eventlog.RecordedEvent) int64 { return int64(r.Position) })
}

const columns = `position, event_id, stream_key, stream_version, event_type, location_id, occurred_at, recorded_at, payload`

// paged fetches pages eagerly so no connection is held while the caller
// processes events.
func paged(ctx context.Context, fetch func(context.Context, int64) ([]eventlog.RecordedEvent, error), start int64, key func(eventlog.RecordedEvent) int64) iter.Seq2[eventlog.RecordedEvent, error] {
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
			if len(page) < pageSize {
				return
			}
		}
	}
}

func (l *Log) query(ctx context.Context, q string, args ...any) ([]eventlog.RecordedEvent, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventlog.RecordedEvent
	for rows.Next() {
		var (
			rec                    eventlog.RecordedEvent
			pos, version           int64
			eventID, locationID    string
			occurredAt, recordedAt int64
		)
		if err := rows.Scan(&pos, &eventID, &rec.StreamKey, &version, &rec.Type, &locationID, &occurredAt, &recordedAt, &rec.Data); err != nil {
			return nil, err
		}
		rec.Position = uint64(pos)
		rec.StreamVersion = uint64(version)
		if rec.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("event %d: %w", pos, err)
		}
		if rec.LocationID, err = uuid.Parse(locationID); err != nil {
			return nil, fmt.Errorf("event %d: %w", pos, err)
		}
		rec.OccurredAt = time.UnixMilli(occurredAt).UTC()
		rec.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
