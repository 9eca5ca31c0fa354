package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// janitorInterval is how often the background sweep evicts expired entries.
const janitorInterval = time.Second

// LocalStore is the process-local fallback implementation of Store. All
// access is serialized under one mutex, which makes every contract method
// atomic within this process. It provides no cross-process protection;
// selecting it in place of the shared backend is a degraded mode.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]localEntry
	hashes  map[string]map[string]string
	locks   map[string]localLock

	codec  codec
	flight flightGroup
	mode   Mode

	done      chan struct{}
	closeOnce sync.Once
}

type localEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e localEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type localLock struct {
	token     string
	expiresAt time.Time
}

// NewLocal creates a LocalStore and starts its expiry sweep.
func NewLocal(compressMinBytes int) *LocalStore {
	return newLocal(compressMinBytes, ModeLocal)
}

func newLocal(compressMinBytes int, mode Mode) *LocalStore {
	s := &LocalStore{
		entries: make(map[string]localEntry),
		hashes:  make(map[string]map[string]string),
		locks:   make(map[string]localLock),
		codec:   newCodec(compressMinBytes),
		mode:    mode,
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *LocalStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *LocalStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
	for key, l := range s.locks {
		if now.After(l.expiresAt) {
			delete(s.locks, key)
		}
	}
}

// Get returns the value for key, or false when absent or expired.
func (s *LocalStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.expired(time.Now()) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return "", false, nil
	}
	value, err := s.codec.decode(e.value)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key with an optional TTL.
func (s *LocalStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := localEntry{value: s.codec.encode(value)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Remove deletes key, reporting whether it existed.
func (s *LocalStore) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(s.entries, key)
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Exists reports whether key is present and unexpired.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// GetOrCreate returns the cached value or runs factory exactly once across
// concurrent callers, storing and returning its result.
func (s *LocalStore) GetOrCreate(ctx context.Context, key string, factory Factory, ttl time.Duration) (string, error) {
	if value, ok, err := s.Get(ctx, key); err != nil || ok {
		return value, err
	}

	return s.flight.do(key, func() (string, error) {
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
func (s *LocalStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var current int64
	created := true

	if e, ok := s.entries[key]; ok && !e.expired(now) {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, reviewerr.Wrap(reviewerr.SerializationFailed,
				fmt.Sprintf("value at %s is not a counter", key), err)
		}
		current = parsed
		created = false
	}

	current += delta
	e := localEntry{value: strconv.FormatInt(current, 10)}
	if !created {
		e.expiresAt = s.entries[key].expiresAt
	} else if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e

	return current, nil
}

// Decrement atomically subtracts delta from the counter at key.
func (s *LocalStore) Decrement(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return s.Increment(ctx, key, -delta, ttl)
}

// HashSet stores a field in the sub-map under key.
func (s *LocalStore) HashSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = s.codec.encode(value)
	return nil
}

// HashGet returns a field from the sub-map under key.
func (s *LocalStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	raw, ok := s.hashes[key][field]
	s.mu.Unlock()

	if !ok {
		return "", false, nil
	}
	value, err := s.codec.decode(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// HashDelete removes a field from the sub-map under key.
func (s *LocalStore) HashDelete(ctx context.Context, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hashes[key]
	if !ok {
		return false, nil
	}
	if _, ok := h[field]; !ok {
		return false, nil
	}
	delete(h, field)
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return true, nil
}

// TryAcquireLock attempts a non-blocking acquisition of the lock at key.
// On contention it returns nil with no error.
func (s *LocalStore) TryAcquireLock(ctx context.Context, key string, expiry time.Duration) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if l, ok := s.locks[key]; ok && now.Before(l.expiresAt) {
		return nil, nil
	}

	token := uuid.New().String()
	s.locks[key] = localLock{token: token, expiresAt: now.Add(expiry)}
	return &Lock{key: key, token: token, backend: s}, nil
}

func (s *LocalStore) extendLock(ctx context.Context, key, token string, additional time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok || l.token != token || time.Now().After(l.expiresAt) {
		return false, nil
	}
	l.expiresAt = l.expiresAt.Add(additional)
	s.locks[key] = l
	return true, nil
}

func (s *LocalStore) releaseLock(ctx context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok || l.token != token || time.Now().After(l.expiresAt) {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

// Mode reports the backend mode.
func (s *LocalStore) Mode() Mode {
	return s.mode
}

// Ping always succeeds for the in-process store.
func (s *LocalStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the expiry sweep. Safe to call more than once.
func (s *LocalStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
