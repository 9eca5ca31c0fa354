package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// Lua scripts keep the compare-then-mutate lock operations single round
// trips executed atomically on the server.
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	local ttl = redis.call("pttl", KEYS[1])
	if ttl < 0 then
		ttl = 0
	end
	return redis.call("pexpire", KEYS[1], ttl + tonumber(ARGV[2]))
end
return 0`)

	incrScript = redis.NewScript(`
local v = redis.call("incrby", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 and v == tonumber(ARGV[1]) then
	redis.call("pexpire", KEYS[1], ARGV[2])
end
return v`)
)

// RedisStore is the shared-backend implementation of Store. All mutations
// go through native atomic commands or single server-side script
// executions, so the contract holds across any number of instances.
type RedisStore struct {
	rdb    *redis.Client
	codec  codec
	flight flightGroup
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr             string
	Password         string
	DB               int
	CompressMinBytes int
}

// NewRedis creates a RedisStore. The connection is not probed here; use
// Ping or Open for startup selection.
func NewRedis(opts RedisOptions) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		codec: newCodec(opts.CompressMinBytes),
	}
}

func wrapRedisErr(op string, err error) error {
	return reviewerr.Wrap(reviewerr.BackendUnavailable, "redis "+op+" failed", err)
}

// Get returns the value for key, or false when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapRedisErr("get", err)
	}
	value, err := s.codec.decode(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key with an optional TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, s.codec.encode(value), ttl).Err(); err != nil {
		return wrapRedisErr("set", err)
	}
	return nil
}

// Remove deletes key, reporting whether it existed.
func (s *RedisStore) Remove(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, wrapRedisErr("del", err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapRedisErr("exists", err)
	}
	return n > 0, nil
}

// GetOrCreate returns the cached value or runs factory exactly once per
// process across concurrent callers, storing and returning its result.
func (s *RedisStore) GetOrCreate(ctx context.Context, key string, factory Factory, ttl time.Duration) (string, error) {
	if value, ok, err := s.Get(ctx, key); err != nil || ok {
		return value, err
	}

	return s.flight.do(key, func() (string, error) {
		// Re-check under the flight: a concurrent caller may have stored
		// the value between the miss and entering the flight.
		if value, ok, err := s.Get(ctx, key); err != nil || ok {
			return value, err
		}
		value, err := factory(ctx)
		if err != nil {
			return "", err
		}
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return "", err
		}
		return value, nil
	})
}

// Increment atomically adds delta to the counter at key.
func (s *RedisStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl < 0 {
		ttl = 0
	}
	v, err := incrScript.Run(ctx, s.rdb, []string{key}, delta, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, wrapRedisErr("incrby", err)
	}
	return v, nil
}

// Decrement atomically subtracts delta from the counter at key.
func (s *RedisStore) Decrement(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return s.Increment(ctx, key, -delta, ttl)
}

// HashSet stores a field in the sub-map under key.
func (s *RedisStore) HashSet(ctx context.Context, key, field, value string) error {
	if err := s.rdb.HSet(ctx, key, field, s.codec.encode(value)).Err(); err != nil {
		return wrapRedisErr("hset", err)
	}
	return nil
}

// HashGet returns a field from the sub-map under key.
func (s *RedisStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	raw, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapRedisErr("hget", err)
	}
	value, err := s.codec.decode(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// HashDelete removes a field from the sub-map under key.
func (s *RedisStore) HashDelete(ctx context.Context, key, field string) (bool, error) {
	n, err := s.rdb.HDel(ctx, key, field).Result()
	if err != nil {
		return false, wrapRedisErr("hdel", err)
	}
	return n > 0, nil
}

// TryAcquireLock attempts an atomic set-if-absent-with-expiry acquisition.
// On contention it returns nil with no error.
func (s *RedisStore) TryAcquireLock(ctx context.Context, key string, expiry time.Duration) (*Lock, error) {
	token := uuid.New().String()
	ok, err := s.rdb.SetNX(ctx, key, token, expiry).Result()
	if err != nil {
		return nil, wrapRedisErr("setnx", err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{key: key, token: token, backend: s}, nil
}

func (s *RedisStore) extendLock(ctx context.Context, key, token string, additional time.Duration) (bool, error) {
	v, err := extendScript.Run(ctx, s.rdb, []string{key}, token, additional.Milliseconds()).Int64()
	if err != nil {
		return false, wrapRedisErr("lock extend", err)
	}
	return v == 1, nil
}

func (s *RedisStore) releaseLock(ctx context.Context, key, token string) (bool, error) {
	v, err := releaseScript.Run(ctx, s.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, wrapRedisErr("lock release", err)
	}
	return v == 1, nil
}

// Mode reports the backend mode.
func (s *RedisStore) Mode() Mode {
	return ModeRedis
}

// Ping verifies the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return wrapRedisErr("ping", err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
