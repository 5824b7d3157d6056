// Package eventstore opens the event log backend selected by EVENT_STORE.
package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"cafeteria-menu-system/api/internal/repos"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/eventlog/sqlitelog"
	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/dbx"
)

// Store is an opened event log plus the handles some callers need besides
// it. Pool and Events are nil unless the backend is postgres.
type Store struct {
	Kind   string
	Log    eventlog.Log
	Pool   *pgxpool.Pool
	Events *repos.EventsRepo

	ping  func(context.Context) error
	close func()
}

func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.EventStore {
	case config.EventStorePostgres:
		if cfg.DBMigrateOnStart {
			if err := repos.Migrate(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := dbx.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		events := repos.NewEventsRepo(pool, cfg.KafkaEventsTopic)
		return &Store{
			Kind:   cfg.EventStore,
			Log:    events,
			Pool:   pool,
			Events: events,
			ping:   events.Ping,
			close:  pool.Close,
		}, nil
	case config.EventStoreSQLite:
		log, err := sqlitelog.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Kind:  cfg.EventStore,
			Log:   log,
			ping:  log.Ping,
			close: func() { _ = log.Close() },
		}, nil
	case config.EventStoreMemory:
		return &Store{Kind: cfg.EventStore, Log: eventlog.NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unknown event store %q", cfg.EventStore)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Log == nil {
		return errors.New("event store not open")
	}
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}
