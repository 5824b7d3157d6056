package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/events"
	"cafeteria-menu-system/shared/lockx"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/mqx"
)

type fixture struct {
	log     *eventlog.Memory
	svc     *menu.Service
	store   *projection.RedisStore
	rdb     *redis.Client
	handler catchUpHandler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := eventlog.NewMemory()
	store := projection.NewRedisStore(rdb, "test:proj:")
	projector := projection.NewProjector(log, store, projection.WithLogger(logx.Discard()))
	return fixture{
		log:   log,
		svc:   menu.NewService(log, menu.WithLogger(logx.Discard())),
		store: store,
		rdb:   rdb,
		handler: catchUpHandler{
			projector: projector,
			rdb:       rdb,
			lockTTL:   5 * time.Second,
			logger:    logx.Discard(),
		},
	}
}

func message(t *testing.T, position uint64) kafka.Message {
	t.Helper()
	msg, err := mqx.EnvelopeMessage(events.TopicMenuEvents, events.Envelope{
		EventType: "LocationCreated",
		Position:  position,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return msg
}

func TestHandleProjectsUpToLogHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateLocation(ctx, menu.CreateLocation{Name: "North Hall", TimeZone: "UTC"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	if !f.handler.handle(ctx, message(t, 1)) {
		t.Fatalf("message should be committable")
	}
	v, ok, err := f.store.Location(ctx, id)
	if err != nil || !ok || v.Name != "North Hall" {
		t.Fatalf("location view: %+v ok=%v err=%v", v, ok, err)
	}
	if cp, _ := f.store.Checkpoint(ctx); cp != 1 {
		t.Fatalf("unexpected checkpoint %d", cp)
	}
}

func TestHandleSkipsPositionsAlreadyProjected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateLocation(ctx, menu.CreateLocation{Name: "North Hall", TimeZone: "UTC"}); err != nil {
		t.Fatal(err)
	}
	if !f.handler.handle(ctx, message(t, 1)) {
		t.Fatalf("first message should be committable")
	}
	if _, err := f.svc.CreateLocation(ctx, menu.CreateLocation{Name: "South Hall", TimeZone: "UTC"}); err != nil {
		t.Fatal(err)
	}
	// A redelivered old position does not drive a catch-up.
	if !f.handler.handle(ctx, message(t, 1)) {
		t.Fatalf("stale message should be committable")
	}
	if cp, _ := f.store.Checkpoint(ctx); cp != 1 {
		t.Fatalf("stale message moved checkpoint to %d", cp)
	}
	if !f.handler.handle(ctx, message(t, 2)) {
		t.Fatalf("new message should be committable")
	}
	if cp, _ := f.store.Checkpoint(ctx); cp != 2 {
		t.Fatalf("unexpected checkpoint %d", cp)
	}
}

func TestHandleCommitsUndecodableMessages(t *testing.T) {
	f := newFixture(t)
	if !f.handler.handle(context.Background(), kafka.Message{Value: []byte("{broken")}) {
		t.Fatalf("poison messages must not block the partition")
	}
}

func TestHandleDefersToLockHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateLocation(ctx, menu.CreateLocation{Name: "North Hall", TimeZone: "UTC"}); err != nil {
		t.Fatal(err)
	}
	lock, ok, err := lockx.Acquire(ctx, f.rdb, projectionLockKey, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer func() { _ = lockx.Release(ctx, f.rdb, lock) }()

	if !f.handler.handle(ctx, message(t, 1)) {
		t.Fatalf("message should be committed while another consumer projects")
	}
	if cp, _ := f.store.Checkpoint(ctx); cp != 0 {
		t.Fatalf("projection ran without the lock, checkpoint %d", cp)
	}
}
