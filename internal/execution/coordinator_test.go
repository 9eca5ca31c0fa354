package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wosledon/AIReview-sub002/internal/cache"
	"github.com/wosledon/AIReview-sub002/internal/logging"
	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

func newTestCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	store := cache.NewLocal(0)
	t.Cleanup(func() { _ = store.Close() })
	return NewCoordinator(store, nil, logging.Nop(), opts)
}

func testOptions() Options {
	return Options{
		DefaultLockTimeout: time.Minute,
		SuppressionWindow:  150 * time.Millisecond,
		Retention:          time.Hour,
	}
}

func TestTryStartExecutionSingleWinner(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	const callers = 16
	var winners int32
	var wg sync.WaitGroup
	contexts := make([]*ExecutionContext, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec, err := coord.TryStartExecution(ctx, "risk", "review-42", 0)
			if err != nil {
				t.Errorf("TryStartExecution() error = %v", err)
				return
			}
			if ec != nil {
				atomic.AddInt32(&winners, 1)
				contexts[i] = ec
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	for _, ec := range contexts {
		if ec != nil {
			ec.Dispose(ctx)
		}
	}
}

func TestTryStartExecutionLifecycle(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	first, err := coord.TryStartExecution(ctx, "risk", "review-42", 30*time.Minute)
	if err != nil {
		t.Fatalf("TryStartExecution() error = %v", err)
	}
	if first == nil {
		t.Fatal("first caller should win the slot")
	}

	// Second caller while the first is executing is suppressed.
	second, err := coord.TryStartExecution(ctx, "risk", "review-42", 30*time.Minute)
	if err != nil {
		t.Fatalf("TryStartExecution() error = %v", err)
	}
	if second != nil {
		t.Fatal("second concurrent caller must get absent")
	}

	// A different identity is unaffected.
	other, err := coord.TryStartExecution(ctx, "risk", "review-43", 0)
	if err != nil || other == nil {
		t.Fatalf("unrelated identity blocked: (%v, %v)", other, err)
	}
	other.Dispose(ctx)

	if err := first.MarkSuccess(ctx, map[string]int{"score": 85}); err != nil {
		t.Fatalf("MarkSuccess() error = %v", err)
	}
	first.Dispose(ctx)

	// Immediately after success, the suppression window blocks re-execution.
	third, err := coord.TryStartExecution(ctx, "risk", "review-42", 0)
	if err != nil {
		t.Fatalf("TryStartExecution() error = %v", err)
	}
	if third != nil {
		t.Fatal("call inside the suppression window must get absent")
	}

	rec, ok, err := coord.GetExecution(ctx, "risk", "review-42")
	if err != nil || !ok {
		t.Fatalf("GetExecution() = (%v, %v, %v)", rec, ok, err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("Status = %v, want %v", rec.Status, StatusCompleted)
	}
	if rec.Progress != 100 {
		t.Errorf("Progress = %d, want 100", rec.Progress)
	}

	// After the window elapses, a fresh context is handed out.
	time.Sleep(200 * time.Millisecond)
	fourth, err := coord.TryStartExecution(ctx, "risk", "review-42", 0)
	if err != nil {
		t.Fatalf("TryStartExecution() error = %v", err)
	}
	if fourth == nil {
		t.Fatal("call after the suppression window must get a fresh context")
	}
	if fourth.ExecutionID() == first.ExecutionID() {
		t.Error("fresh context reused the previous execution ID")
	}
	fourth.Dispose(ctx)
}

func TestUpdateProgress(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	ec, err := coord.TryStartExecution(ctx, "summary", "pr-7", 0)
	if err != nil || ec == nil {
		t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
	}
	defer ec.Dispose(ctx)

	tests := []struct {
		name    string
		percent int
		want    int
	}{
		{"normal", 40, 40},
		{"clamped low", -5, 0},
		{"clamped high", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ec.UpdateProgress(ctx, tt.percent, "working"); err != nil {
				t.Fatalf("UpdateProgress() error = %v", err)
			}
			rec, ok, err := coord.GetExecution(ctx, "summary", "pr-7")
			if err != nil || !ok {
				t.Fatalf("GetExecution() = (%v, %v)", ok, err)
			}
			if rec.Progress != tt.want {
				t.Errorf("Progress = %d, want %d", rec.Progress, tt.want)
			}
			if rec.ProgressMessage != "working" {
				t.Errorf("ProgressMessage = %q, want %q", rec.ProgressMessage, "working")
			}
		})
	}
}

func TestMarkFailure(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	ec, err := coord.TryStartExecution(ctx, "risk", "pr-9", 0)
	if err != nil || ec == nil {
		t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
	}

	if err := ec.MarkFailure(ctx, "analysis request rejected", errors.New("status 429")); err != nil {
		t.Fatalf("MarkFailure() error = %v", err)
	}
	ec.Dispose(ctx)

	rec, ok, err := coord.GetExecution(ctx, "risk", "pr-9")
	if err != nil || !ok {
		t.Fatalf("GetExecution() = (%v, %v)", ok, err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", rec.Status, StatusFailed)
	}
	if rec.ErrorMessage != "analysis request rejected: status 429" {
		t.Errorf("ErrorMessage = %q", rec.ErrorMessage)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}
}

func TestFinalizeGuards(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	t.Run("double finalize rejected", func(t *testing.T) {
		ec, err := coord.TryStartExecution(ctx, "risk", "guard-1", 0)
		if err != nil || ec == nil {
			t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
		}
		defer ec.Dispose(ctx)

		if err := ec.MarkSuccess(ctx, nil); err != nil {
			t.Fatalf("MarkSuccess() error = %v", err)
		}
		err = ec.MarkFailure(ctx, "too late", nil)
		if !reviewerr.IsCode(err, reviewerr.ExecutionFinalized) {
			t.Errorf("second finalize error = %v, want EXECUTION_FINALIZED", err)
		}
	})

	t.Run("extend after finalize rejected", func(t *testing.T) {
		ec, err := coord.TryStartExecution(ctx, "risk", "guard-2", 0)
		if err != nil || ec == nil {
			t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
		}
		defer ec.Dispose(ctx)

		if err := ec.MarkSuccess(ctx, nil); err != nil {
			t.Fatalf("MarkSuccess() error = %v", err)
		}
		_, err = ec.ExtendTimeout(ctx, time.Minute)
		if !reviewerr.IsCode(err, reviewerr.ExecutionFinalized) {
			t.Errorf("ExtendTimeout() error = %v, want EXECUTION_FINALIZED", err)
		}
	})

	t.Run("use after dispose rejected", func(t *testing.T) {
		ec, err := coord.TryStartExecution(ctx, "risk", "guard-3", 0)
		if err != nil || ec == nil {
			t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
		}

		ec.Dispose(ctx)
		ec.Dispose(ctx) // second dispose is a no-op

		err = ec.UpdateProgress(ctx, 10, "")
		if !reviewerr.IsCode(err, reviewerr.ExecutionDisposed) {
			t.Errorf("UpdateProgress() error = %v, want EXECUTION_DISPOSED", err)
		}
	})
}

func TestExtendTimeoutLostLock(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	ec, err := coord.TryStartExecution(ctx, "risk", "short-lease", 30*time.Millisecond)
	if err != nil || ec == nil {
		t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
	}
	defer ec.Dispose(ctx)

	time.Sleep(60 * time.Millisecond)

	ok, err := ec.ExtendTimeout(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ExtendTimeout() error = %v", err)
	}
	if ok {
		t.Error("ExtendTimeout() reported success on an expired lock")
	}
}

func TestExtendTimeoutKeepsSlot(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	ctx := context.Background()

	ec, err := coord.TryStartExecution(ctx, "risk", "long-job", 100*time.Millisecond)
	if err != nil || ec == nil {
		t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
	}
	defer ec.Dispose(ctx)

	ok, err := ec.ExtendTimeout(ctx, 500*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("ExtendTimeout() = (%v, %v), want (true, nil)", ok, err)
	}

	time.Sleep(150 * time.Millisecond)

	// Past the original lease but inside the extension: still exclusive.
	second, err := coord.TryStartExecution(ctx, "risk", "long-job", 0)
	if err != nil {
		t.Fatalf("TryStartExecution() error = %v", err)
	}
	if second != nil {
		t.Error("slot was claimable during an extended lease")
		second.Dispose(ctx)
	}
}

// fakeArchive records appended executions in memory.
type fakeArchive struct {
	mu      sync.Mutex
	records []*Record
	removed int64
}

func (f *fakeArchive) Append(ctx context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeArchive) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return f.removed, nil
}

func TestArchiveReceivesTerminalRecords(t *testing.T) {
	store := cache.NewLocal(0)
	t.Cleanup(func() { _ = store.Close() })
	archive := &fakeArchive{removed: 3}
	coord := NewCoordinator(store, archive, logging.Nop(), testOptions())
	ctx := context.Background()

	ec, err := coord.TryStartExecution(ctx, "risk", "archived", 0)
	if err != nil || ec == nil {
		t.Fatalf("TryStartExecution() = (%v, %v)", ec, err)
	}
	if err := ec.MarkSuccess(ctx, nil); err != nil {
		t.Fatalf("MarkSuccess() error = %v", err)
	}
	ec.Dispose(ctx)

	archive.mu.Lock()
	n := len(archive.records)
	archive.mu.Unlock()
	if n != 1 {
		t.Fatalf("archived records = %d, want 1", n)
	}

	removed, err := coord.CleanupExpiredExecutions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredExecutions() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
}

func TestCleanupWithoutArchive(t *testing.T) {
	coord := newTestCoordinator(t, testOptions())
	removed, err := coord.CleanupExpiredExecutions(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredExecutions() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusExecuting, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}
