package execution

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wosledon/AIReview-sub002/internal/logging"
	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// ExecutionContext is the live handle for one claimed execution. It owns
// the backing lock and the Executing record until disposed.
//
// Callers must dispose on every exit path:
//
//	ec, err := coord.TryStartExecution(ctx, "risk", key, 0)
//	if err != nil || ec == nil {
//		return err
//	}
//	defer ec.Dispose(ctx)
type ExecutionContext struct {
	coord     *Coordinator
	lock      cacheLock
	record    *Record
	statusKey string
	expiresAt time.Time

	mu        sync.Mutex
	finalized bool
	disposed  bool
}

// cacheLock matches the cache.Lock handle surface the context needs.
type cacheLock interface {
	Extend(ctx context.Context, additional time.Duration) (bool, error)
	Release(ctx context.Context) (bool, error)
}

// ExecutionID returns the unique ID of this attempt.
func (e *ExecutionContext) ExecutionID() string {
	return e.record.ExecutionID
}

// JobType returns the job type of this execution.
func (e *ExecutionContext) JobType() string {
	return e.record.JobType
}

// JobKey returns the job key of this execution.
func (e *ExecutionContext) JobKey() string {
	return e.record.JobKey
}

// Record returns a copy of the current record.
func (e *ExecutionContext) Record() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.record
}

// remainingTTL returns the time left on the lock, floored so a record
// written near expiry still expires instead of living forever.
func (e *ExecutionContext) remainingTTL() time.Duration {
	ttl := time.Until(e.expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (e *ExecutionContext) guard() error {
	if e.disposed {
		return reviewerr.New(reviewerr.ExecutionDisposed, "execution context already disposed")
	}
	if e.finalized {
		return reviewerr.New(reviewerr.ExecutionFinalized, "execution already finalized")
	}
	return nil
}

// UpdateProgress records progress [0,100] with an optional message.
func (e *ExecutionContext) UpdateProgress(ctx context.Context, percent int, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return err
	}

	e.record.SetProgress(percent, message)
	return e.coord.writeOwned(ctx, e.statusKey, e.record, e.remainingTTL())
}

// ExtendTimeout adds additional time to the held lock and the Executing
// record. It returns false when the lock was already lost; the caller must
// treat that as integrity compromised and finish or abort immediately.
// Extending a finalized or disposed context is an error.
func (e *ExecutionContext) ExtendTimeout(ctx context.Context, additional time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return false, err
	}

	ok, err := e.lock.Extend(ctx, additional)
	if err != nil {
		return false, err
	}
	if !ok {
		e.coord.logger.Warn("Lock lost while extending execution", logging.Fields{
			"jobType":     e.record.JobType,
			"jobKey":      e.record.JobKey,
			"executionId": e.record.ExecutionID,
		})
		return false, nil
	}

	e.expiresAt = e.expiresAt.Add(additional)
	if err := e.coord.writeOwned(ctx, e.statusKey, e.record, e.remainingTTL()); err != nil {
		return false, err
	}
	return true, nil
}

// MarkSuccess transitions the execution to Completed and stores the result.
func (e *ExecutionContext) MarkSuccess(ctx context.Context, result interface{}) error {
	var encoded string
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return reviewerr.Wrap(reviewerr.SerializationFailed, "failed to encode execution result", err)
		}
		encoded = string(data)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return err
	}

	e.record.markCompleted(encoded)
	if err := e.coord.writeOwned(ctx, e.statusKey, e.record, e.coord.opts.Retention); err != nil {
		return err
	}
	e.finalized = true

	e.coord.archiveRecord(ctx, e.record)
	e.coord.logger.Info("Execution completed", logging.Fields{
		"jobType":     e.record.JobType,
		"jobKey":      e.record.JobKey,
		"executionId": e.record.ExecutionID,
		"duration":    e.record.Duration().String(),
	})
	return nil
}

// MarkFailure transitions the execution to Failed and stores the error.
func (e *ExecutionContext) MarkFailure(ctx context.Context, message string, cause error) error {
	if cause != nil {
		message = message + ": " + cause.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return err
	}

	e.record.markFailed(message)
	if err := e.coord.writeOwned(ctx, e.statusKey, e.record, e.coord.opts.Retention); err != nil {
		return err
	}
	e.finalized = true

	e.coord.archiveRecord(ctx, e.record)
	e.coord.logger.Warn("Execution failed", logging.Fields{
		"jobType":     e.record.JobType,
		"jobKey":      e.record.JobKey,
		"executionId": e.record.ExecutionID,
		"error":       message,
	})
	return nil
}

// Dispose releases the lock if still owned. It runs on every exit path and
// is idempotent: the second and later calls are no-ops. An execution left
// un-finalized stays Executing only until the lock's own expiry, which
// bounds how long a crashed job can hold its slot.
func (e *ExecutionContext) Dispose(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.disposed = true

	released, err := e.lock.Release(ctx)
	if err != nil {
		e.coord.logger.Warn("Failed to release execution lock", logging.Fields{
			"jobType":     e.record.JobType,
			"jobKey":      e.record.JobKey,
			"executionId": e.record.ExecutionID,
			"error":       err.Error(),
		})
		return
	}
	if !released {
		// The lock expired (and may have been reacquired elsewhere);
		// compare-then-delete correctly refused to touch it.
		e.coord.logger.Debug("Execution lock already gone at dispose", logging.Fields{
			"jobType":     e.record.JobType,
			"jobKey":      e.record.JobKey,
			"executionId": e.record.ExecutionID,
		})
	}

	if !e.finalized {
		e.coord.logger.Warn("Execution disposed without finalize", logging.Fields{
			"jobType":     e.record.JobType,
			"jobKey":      e.record.JobKey,
			"executionId": e.record.ExecutionID,
		})
	}
}
