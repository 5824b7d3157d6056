package lockx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestAcquireIsExclusive(t *testing.T) {
	rdb, _ := newRedis(t)
	ctx := context.Background()

	first, ok, err := Acquire(ctx, rdb, "lock:projector", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := Acquire(ctx, rdb, "lock:projector", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should be refused: ok=%v err=%v", ok, err)
	}
	if err := Release(ctx, rdb, first); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, err := Acquire(ctx, rdb, "lock:projector", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	if _, ok, _ := Acquire(ctx, rdb, "k", time.Minute); !ok {
		t.Fatalf("acquire failed")
	}
	if err := Release(ctx, rdb, &Lock{Key: "k", Token: "someone-else"}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists("k") {
		t.Fatalf("foreign release must not delete the key")
	}
}

func TestRefreshAfterExpiry(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	lock, ok, err := Acquire(ctx, rdb, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if err := Refresh(ctx, rdb, lock); err != nil {
		t.Fatalf("refresh while held: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if err := Refresh(ctx, rdb, lock); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestWithLock(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	calls := 0
	ran, err := WithLock(ctx, rdb, "k", time.Minute, func(context.Context) error {
		calls++
		if _, ok, _ := Acquire(ctx, rdb, "k", time.Minute); ok {
			t.Errorf("lock should be held inside fn")
		}
		return nil
	})
	if err != nil || !ran || calls != 1 {
		t.Fatalf("WithLock: ran=%v err=%v calls=%d", ran, err, calls)
	}
	if mr.Exists("k") {
		t.Fatalf("lock should be released after fn")
	}

	if _, ok, _ := Acquire(ctx, rdb, "k", time.Minute); !ok {
		t.Fatalf("acquire failed")
	}
	ran, err = WithLock(ctx, rdb, "k", time.Minute, func(context.Context) error {
		t.Errorf("fn must not run while the lock is busy")
		return nil
	})
	if err != nil || ran {
		t.Fatalf("busy WithLock: ran=%v err=%v", ran, err)
	}
}

func TestWithLockKeepsLockAlive(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	ran, err := WithLock(ctx, rdb, "k", 100*time.Millisecond, func(context.Context) error {
		// Without refreshes the key would expire after 100ms of fast-forwarding.
		for i := 0; i < 3; i++ {
			mr.FastForward(80 * time.Millisecond)
			time.Sleep(120 * time.Millisecond)
		}
		if !mr.Exists("k") {
			t.Errorf("lock expired while fn was running")
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("WithLock: ran=%v err=%v", ran, err)
	}
}

func TestWithLockCancelsWhenLockIsLost(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	ran, err := WithLock(ctx, rdb, "k", 100*time.Millisecond, func(ctx context.Context) error {
		mr.Del("k")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Errorf("fn context was not cancelled")
			return nil
		}
	})
	if !ran || !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got ran=%v err=%v", ran, err)
	}
}
