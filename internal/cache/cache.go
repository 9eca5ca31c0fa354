// Package cache provides the key-value and distributed-lock abstraction the
// analysis core runs on. Two interchangeable backends implement the same
// contract: a shared Redis store for multi-instance deployments and a
// process-local store for single-instance fallback. Selection happens once
// at startup (see Open); falling back voids cross-instance guarantees and is
// logged as degraded.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// Mode identifies which backend a Store is running on.
type Mode string

const (
	// ModeRedis is the shared multi-instance backend.
	ModeRedis Mode = "redis"
	// ModeLocal is the process-local backend, selected explicitly.
	ModeLocal Mode = "local"
	// ModeLocalFallback is the process-local backend selected because the
	// shared backend was unreachable at startup. Cross-instance guarantees
	// are void in this mode.
	ModeLocalFallback Mode = "local-fallback"
)

// Degraded reports whether the mode provides only process-local guarantees
// after a failed probe of the shared backend.
func (m Mode) Degraded() bool {
	return m == ModeLocalFallback
}

// Factory produces a value for GetOrCreate when the key is absent.
type Factory func(ctx context.Context) (string, error)

// Store is the cache/lock contract shared by both backends.
//
// Values are serialized strings; TTLs of zero or below mean no expiry.
// Counter and hash mutations are atomic on the backend, never a client-side
// read-modify-write.
type Store interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with an optional TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Remove deletes key, reporting whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrCreate returns the cached value, or invokes factory exactly once
	// (per process, across concurrent callers), stores its result and
	// returns it. Factory errors propagate uncached.
	GetOrCreate(ctx context.Context, key string, factory Factory, ttl time.Duration) (string, error)

	// Increment atomically adds delta to the counter at key, creating it at
	// zero first. The TTL applies when the counter is created.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Decrement atomically subtracts delta from the counter at key.
	Decrement(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// HashSet stores a field in the sub-map scoped under key.
	HashSet(ctx context.Context, key, field, value string) error

	// HashGet returns a field from the sub-map under key, or false when absent.
	HashGet(ctx context.Context, key, field string) (string, bool, error)

	// HashDelete removes a field from the sub-map under key, reporting
	// whether it existed.
	HashDelete(ctx context.Context, key, field string) (bool, error)

	// TryAcquireLock attempts a non-blocking acquisition of the distributed
	// lock at key. On success it returns a handle carrying a fresh random
	// token; on contention it returns nil with no error.
	TryAcquireLock(ctx context.Context, key string, expiry time.Duration) (*Lock, error)

	// Mode reports which backend this store runs on.
	Mode() Mode

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// GetJSON fetches key and unmarshals it into out. A present but undecodable
// value is reported as a SERIALIZATION_FAILED error, never a silent miss.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, reviewerr.Wrap(reviewerr.SerializationFailed, "failed to decode cached value for "+key, err)
	}
	return true, nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return reviewerr.Wrap(reviewerr.SerializationFailed, "failed to encode value for "+key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

// flightGroup coalesces concurrent GetOrCreate calls for the same key so the
// factory runs exactly once per process.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

type flightCall struct {
	done chan struct{}
	val  string
	err  error
}

func (g *flightGroup) do(key string, fn func() (string, error)) (string, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*flightCall)
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}

	c := &flightCall{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.val, c.err
}
