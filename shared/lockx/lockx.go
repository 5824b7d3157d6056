package lockx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Refresh when the lock expired or was taken
// over by another holder.
var ErrNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type Lock struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Acquire takes key for ttl. It reports false without error when another
// holder owns the key.
func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, bool, error) {
	if client == nil {
		return nil, false, errors.New("redis client not initialized")
	}
	if ttl <= 0 {
		return nil, false, errors.New("ttl must be > 0")
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{Key: key, Token: token, TTL: ttl}, true, nil
}

func Refresh(ctx context.Context, client *redis.Client, lock *Lock) error {
	if client == nil {
		return errors.New("redis client not initialized")
	}
	if lock == nil {
		return errors.New("lock is nil")
	}
	n, err := refreshScript.Run(ctx, client, []string{lock.Key}, lock.Token, lock.TTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func Release(ctx context.Context, client *redis.Client, lock *Lock) error {
	if client == nil {
		return errors.New("redis client not initialized")
	}
	if lock == nil {
		return errors.New("lock is nil")
	}
	return releaseScript.Run(ctx, client, []string{lock.Key}, lock.Token).Err()
}

// WithLock runs fn while holding key. The lock is refreshed every ttl/2
// until fn returns; if a refresh finds the lock lost, fn's context is
// cancelled. ran is false when the lock was busy.
func WithLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration, fn func(context.Context) error) (ran bool, err error) {
	lock, ok, err := Acquire(ctx, client, key, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = Release(rctx, client, lock)
	}()

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(max(ttl/2, 10*time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-fnCtx.Done():
				return
			case <-ticker.C:
				if err := Refresh(fnCtx, client, lock); errors.Is(err, ErrNotHeld) {
					cancel(ErrNotHeld)
					return
				}
			}
		}
	}()

	if err := fn(fnCtx); err != nil {
		if cause := context.Cause(fnCtx); errors.Is(cause, ErrNotHeld) {
			return true, cause
		}
		return true, err
	}
	return true, nil
}
