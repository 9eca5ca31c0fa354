package cache

import (
	"context"
	"time"
)

// lockBackend is the subset of backend operations a Lock handle needs.
// Both stores implement it with atomic compare-then-mutate semantics: a
// token mismatch means ownership was lost and the operation is a no-op.
type lockBackend interface {
	extendLock(ctx context.Context, key, token string, additional time.Duration) (bool, error)
	releaseLock(ctx context.Context, key, token string) (bool, error)
}

// Lock is a handle to one acquisition of a distributed lock. Ownership is
// modeled by the random token stored as the lock value: only the holder
// whose token still matches may extend or release it.
type Lock struct {
	key     string
	token   string
	backend lockBackend
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}

// Token returns the acquisition token.
func (l *Lock) Token() string {
	return l.token
}

// Extend adds additional time to the lock's remaining expiry. It returns
// false when the lock is no longer owned (expired and possibly reacquired
// elsewhere); the caller must stop mutating state guarded by this lock.
func (l *Lock) Extend(ctx context.Context, additional time.Duration) (bool, error) {
	return l.backend.extendLock(ctx, l.key, l.token, additional)
}

// Release deletes the lock if this handle still owns it. A release by a
// non-owner is a no-op returning false, so a holder whose lock expired and
// was reacquired elsewhere can never delete someone else's lock.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	return l.backend.releaseLock(ctx, l.key, l.token)
}
