package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/wosledon/AIReview-sub002/internal/cache"
	"github.com/wosledon/AIReview-sub002/internal/logging"
	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

const (
	statusKeyPrefix = "exec:status:"
	lockKeyPrefix   = "exec:lock:"
)

// Archive durably stores terminal execution records beyond their cache TTL.
// The SQLite history store implements it; a nil archive disables archiving.
type Archive interface {
	Append(ctx context.Context, rec *Record) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Options tunes the coordinator.
type Options struct {
	// DefaultLockTimeout is used when TryStartExecution gets no timeout.
	DefaultLockTimeout time.Duration
	// SuppressionWindow suppresses re-execution this soon after a terminal
	// record was produced.
	SuppressionWindow time.Duration
	// Retention is how long terminal records stay readable in the cache.
	Retention time.Duration
}

// DefaultOptions returns the default coordinator options.
func DefaultOptions() Options {
	return Options{
		DefaultLockTimeout: 30 * time.Minute,
		SuppressionWindow:  time.Minute,
		Retention:          24 * time.Hour,
	}
}

// Coordinator guarantees at most one concurrent execution per
// (jobType, jobKey) across every instance sharing the cache backend.
type Coordinator struct {
	store   cache.Store
	archive Archive
	logger  *logging.Logger
	opts    Options
}

// NewCoordinator creates a coordinator on the given store. archive may be
// nil to disable durable history.
func NewCoordinator(store cache.Store, archive Archive, logger *logging.Logger, opts Options) *Coordinator {
	if opts.DefaultLockTimeout <= 0 {
		opts.DefaultLockTimeout = DefaultOptions().DefaultLockTimeout
	}
	if opts.SuppressionWindow < 0 {
		opts.SuppressionWindow = 0
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultOptions().Retention
	}
	return &Coordinator{
		store:   store,
		archive: archive,
		logger:  logger,
		opts:    opts,
	}
}

func statusKey(jobType, jobKey string) string {
	return statusKeyPrefix + jobType + ":" + jobKey
}

func lockKey(jobType, jobKey string) string {
	return lockKeyPrefix + jobType + ":" + jobKey
}

// TryStartExecution attempts to claim the (jobType, jobKey) execution slot.
//
// It returns (nil, nil) when the slot is unavailable: another execution is
// running, a terminal record is inside the suppression window, or the lock
// is contended. Contention is benign and never an error. On success the
// returned ExecutionContext owns the lock and must be disposed on every
// exit path.
func (c *Coordinator) TryStartExecution(ctx context.Context, jobType, jobKey string, timeout time.Duration) (*ExecutionContext, error) {
	if jobType == "" || jobKey == "" {
		return nil, fmt.Errorf("jobType and jobKey must not be empty")
	}
	if timeout <= 0 {
		timeout = c.opts.DefaultLockTimeout
	}

	sk := statusKey(jobType, jobKey)
	lk := lockKey(jobType, jobKey)

	// Fast checks before taking the lock. They are advisory only; the
	// authoritative check is repeated under the lock below.
	blocked, err := c.slotBlocked(ctx, sk)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, nil
	}

	lock, err := c.store.TryAcquireLock(ctx, lk, timeout)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, nil
	}

	// Re-check under the lock: two callers can both pass the fast checks
	// before either holds the lock.
	blocked, err = c.slotBlocked(ctx, sk)
	if err != nil {
		_, _ = lock.Release(ctx)
		return nil, err
	}
	if blocked {
		_, _ = lock.Release(ctx)
		return nil, nil
	}

	rec := newRecord(jobType, jobKey)

	// The Executing record lives no longer than the lock: if the process
	// dies without finalizing, both expire together and the slot reopens.
	if err := cache.SetJSON(ctx, c.store, sk, rec, timeout); err != nil {
		_, _ = lock.Release(ctx)
		return nil, err
	}

	c.logger.Debug("Execution started", logging.Fields{
		"jobType":     jobType,
		"jobKey":      jobKey,
		"executionId": rec.ExecutionID,
		"timeout":     timeout.String(),
	})

	return &ExecutionContext{
		coord:     c,
		lock:      lock,
		record:    rec,
		statusKey: sk,
		expiresAt: time.Now().Add(timeout),
	}, nil
}

// slotBlocked reports whether the status record forbids a new execution:
// either one is executing, or a terminal record finished inside the
// suppression window.
func (c *Coordinator) slotBlocked(ctx context.Context, sk string) (bool, error) {
	var rec Record
	ok, err := cache.GetJSON(ctx, c.store, sk, &rec)
	if err != nil || !ok {
		return false, err
	}

	switch rec.Status {
	case StatusExecuting:
		return true, nil
	case StatusCompleted, StatusFailed:
		if rec.CompletedAt != nil && time.Since(*rec.CompletedAt) < c.opts.SuppressionWindow {
			return true, nil
		}
		return false, nil
	default:
		// Unknown status from a newer writer: treat as blocked rather than
		// risk a duplicate execution.
		return true, nil
	}
}

// GetExecution returns the current record for (jobType, jobKey), if any.
func (c *Coordinator) GetExecution(ctx context.Context, jobType, jobKey string) (*Record, bool, error) {
	var rec Record
	ok, err := cache.GetJSON(ctx, c.store, statusKey(jobType, jobKey), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rec, true, nil
}

// CleanupExpiredExecutions removes terminal records older than olderThan
// from the durable history. Cache records expire on their own TTL.
func (c *Coordinator) CleanupExpiredExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if c.archive == nil {
		return 0, nil
	}
	removed, err := c.archive.Cleanup(ctx, olderThan)
	if err != nil {
		return 0, reviewerr.Wrap(reviewerr.HistoryUnavailable, "history cleanup failed", err)
	}
	if removed > 0 {
		c.logger.Info("Cleaned up expired executions", logging.Fields{
			"removed":   removed,
			"olderThan": olderThan.String(),
		})
	}
	return removed, nil
}

// writeOwned persists rec under sk, but only while rec's execution still
// owns the slot. A different execution ID in the store means this
// execution's lock expired and the slot was reclaimed.
func (c *Coordinator) writeOwned(ctx context.Context, sk string, rec *Record, ttl time.Duration) error {
	var stored Record
	ok, err := cache.GetJSON(ctx, c.store, sk, &stored)
	if err != nil {
		return err
	}
	if ok && stored.ExecutionID != rec.ExecutionID {
		return reviewerr.New(reviewerr.LockLost,
			"execution record was reclaimed by "+stored.ExecutionID)
	}
	return cache.SetJSON(ctx, c.store, sk, rec, ttl)
}

// archiveRecord best-effort persists a terminal record to history.
func (c *Coordinator) archiveRecord(ctx context.Context, rec *Record) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Append(ctx, rec); err != nil {
		c.logger.Warn("Failed to archive execution record", logging.Fields{
			"jobType":     rec.JobType,
			"jobKey":      rec.JobKey,
			"executionId": rec.ExecutionID,
			"error":       err.Error(),
		})
	}
}
