package projection

import (
	"context"
	"errors"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps views in Redis hashes so several API replicas can share
// one projection. Layout under prefix:
//
//	checkpoint       string, last projected position
//	locations        hash id -> LocationView json
//	menuitems        hash id -> MenuItemView json
//	devices          hash id -> DeviceView json
//	devices:bykey    hash sha256(api key) -> device id
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cafeteria:proj:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(name string) string { return s.prefix + name }

func (s *RedisStore) Checkpoint(ctx context.Context) (uint64, error) {
	return readCheckpoint(ctx, s.rdb, s.key("checkpoint"))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readCheckpoint(ctx context.Context, c getter, key string) (uint64, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *RedisStore) Locations(ctx context.Context) ([]LocationView, error) {
	all, err := s.rdb.HGetAll(ctx, s.key("locations")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LocationView, 0, len(all))
	for _, raw := range all {
		var v LocationView
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	SortLocations(out)
	return out, nil
}

func (s *RedisStore) Location(ctx context.Context, id uuid.UUID) (LocationView, bool, error) {
	var v LocationView
	ok, err := s.hget(ctx, "locations", id.String(), &v)
	return v, ok, err
}

func (s *RedisStore) MenuItem(ctx context.Context, id uuid.UUID) (MenuItemView, bool, error) {
	var v MenuItemView
	ok, err := s.hget(ctx, "menuitems", id.String(), &v)
	return v, ok, err
}

func (s *RedisStore) Device(ctx context.Context, id uuid.UUID) (DeviceView, bool, error) {
	var v DeviceView
	ok, err := s.hget(ctx, "devices", id.String(), &v)
	return v, ok, err
}

func (s *RedisStore) DeviceByKeyHash(ctx context.Context, hash string) (DeviceView, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.key("devices:bykey"), hash).Result()
	if errors.Is(err, redis.Nil) {
		return DeviceView{}, false, nil
	}
	if err != nil {
		return DeviceView{}, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return DeviceView{}, false, err
	}
	return s.Device(ctx, id)
}

func (s *RedisStore) hget(ctx context.Context, hash string, field string, dst any) (bool, error) {
	raw, err := s.rdb.HGet(ctx, s.key(hash), field).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := sonic.UnmarshalString(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Commit uses WATCH on the checkpoint key so concurrent projectors never
// interleave batches.
func (s *RedisStore) Commit(ctx context.Context, from uint64, to uint64, changes Changes) error {
	cpKey := s.key("checkpoint")
	locs, err := encodeFields(changes.Locations)
	if err != nil {
		return err
	}
	items, err := encodeFields(changes.MenuItems)
	if err != nil {
		return err
	}
	devices, err := encodeFields(changes.Devices)
	if err != nil {
		return err
	}
	byKey := make(map[string]any, len(changes.Devices))
	for id, d := range changes.Devices {
		if d.APIKeyHash != "" {
			byKey[d.APIKeyHash] = id.String()
		}
	}

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cp, err := readCheckpoint(ctx, tx, cpKey)
		if err != nil {
			return err
		}
		if cp != from {
			return ErrCheckpointMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(locs) > 0 {
				pipe.HSet(ctx, s.key("locations"), locs)
			}
			if len(items) > 0 {
				pipe.HSet(ctx, s.key("menuitems"), items)
			}
			if len(devices) > 0 {
				pipe.HSet(ctx, s.key("devices"), devices)
			}
			if len(byKey) > 0 {
				pipe.HSet(ctx, s.key("devices:bykey"), byKey)
			}
			pipe.Set(ctx, cpKey, strconv.FormatUint(to, 10), 0)
			return nil
		})
		return err
	}, cpKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrCheckpointMoved
	}
	return err
}

func (s *RedisStore) Reset(ctx context.Context) error {
	return s.rdb.Del(ctx,
		s.key("checkpoint"),
		s.key("locations"),
		s.key("menuitems"),
		s.key("devices"),
		s.key("devices:bykey"),
	).Err()
}

func encodeFields[V any](m map[uuid.UUID]V) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for id, v := range m {
		raw, err := sonic.MarshalString(v)
		if err != nil {
			return nil, err
		}
		out[id.String()] = raw
	}
	return out, nil
}
