package cachex

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cafeteria-menu-system/shared/config"
)

const DefaultPrefix = "cafeteria:"

var ErrNotInitialized = errors.New("redis client not initialized")

// Client is a thin JSON cache over go-redis. A nil *Client is a valid
// disabled cache: reads miss and writes are dropped.
type Client struct {
	redis  *redis.Client
	prefix string
}

func New(cfg config.Config) (*Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Client{redis: rdb, prefix: DefaultPrefix}, nil
}

func NewFromClient(rdb *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{redis: rdb, prefix: prefix}
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.redis == nil {
		return ErrNotInitialized
	}
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// TodayMenuKey addresses the cached menu of one location for one local date.
func (c *Client) TodayMenuKey(locationID uuid.UUID, date string) string {
	return c.keyPrefix() + "menu:today:" + locationID.String() + ":" + date
}

func (c *Client) keyPrefix() string {
	if c == nil || c.prefix == "" {
		return DefaultPrefix
	}
	return c.prefix
}

func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.redis == nil {
		return nil
	}
	b, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, b, ttl).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.redis == nil {
		return false, nil
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := sonic.Unmarshal(raw, dest); err != nil {
		// A payload we cannot read is dropped so the next call refills it.
		_ = c.redis.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.redis == nil || len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

func (c *Client) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.redis
}
