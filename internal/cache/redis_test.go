package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Redis integration tests run only when REVIEWCORE_TEST_REDIS points at a
// disposable Redis instance, e.g. REVIEWCORE_TEST_REDIS=localhost:6379.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("REVIEWCORE_TEST_REDIS")
	if addr == "" {
		t.Skip("REVIEWCORE_TEST_REDIS not set")
	}

	s := NewRedis(RedisOptions{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("redis at %s not reachable: %v", addr, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testKey(prefix string) string {
	return "reviewcore-test:" + prefix + ":" + uuid.New().String()
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()
	key := testKey("kv")

	if err := s.Set(ctx, key, "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	defer func() { _, _ = s.Remove(ctx, key) }()

	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get() = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}

	removed, err := s.Remove(ctx, key)
	if err != nil || !removed {
		t.Fatalf("Remove() = (%v, %v), want (true, nil)", removed, err)
	}
}

func TestRedisStoreCounters(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()
	key := testKey("counter")
	defer func() { _, _ = s.Remove(ctx, key) }()

	v, err := s.Increment(ctx, key, 5, time.Minute)
	if err != nil || v != 5 {
		t.Fatalf("Increment() = (%d, %v), want (5, nil)", v, err)
	}
	v, err = s.Decrement(ctx, key, 2, time.Minute)
	if err != nil || v != 3 {
		t.Fatalf("Decrement() = (%d, %v), want (3, nil)", v, err)
	}
}

func TestRedisStoreLockOwnership(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()
	key := testKey("lock")

	lock, err := s.TryAcquireLock(ctx, key, time.Minute)
	if err != nil || lock == nil {
		t.Fatalf("TryAcquireLock() = (%v, %v)", lock, err)
	}

	// Contended acquisition returns nil.
	second, err := s.TryAcquireLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock() error = %v", err)
	}
	if second != nil {
		t.Error("contended acquisition should return nil")
	}

	// Release by a forged token is refused.
	forged := &Lock{key: key, token: uuid.New().String(), backend: s}
	released, err := forged.Release(ctx)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if released {
		t.Error("release with a foreign token must fail")
	}

	// Owner release succeeds.
	released, err = lock.Release(ctx)
	if err != nil || !released {
		t.Fatalf("Release() = (%v, %v), want (true, nil)", released, err)
	}
}

func TestRedisStoreHashFields(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()
	key := testKey("hash")
	defer func() { _, _ = s.Remove(ctx, key) }()

	if err := s.HashSet(ctx, key, "f", "v"); err != nil {
		t.Fatalf("HashSet() error = %v", err)
	}
	v, ok, err := s.HashGet(ctx, key, "f")
	if err != nil || !ok || v != "v" {
		t.Fatalf("HashGet() = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
	deleted, err := s.HashDelete(ctx, key, "f")
	if err != nil || !deleted {
		t.Fatalf("HashDelete() = (%v, %v), want (true, nil)", deleted, err)
	}
}
