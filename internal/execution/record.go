// Package execution provides the job idempotency coordinator: at most one
// concurrent execution per (job type, job key) across all instances, backed
// by the distributed lock in the cache abstraction.
package execution

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the state of one job execution.
type Status string

const (
	// StatusExecuting means an execution currently holds the job slot.
	StatusExecuting Status = "executing"
	// StatusCompleted means the execution finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the execution finished with an error.
	StatusFailed Status = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the stored state of one job execution attempt. Identity is
// (JobType, JobKey); ExecutionID is unique per attempt and every mutation
// is scoped to it.
type Record struct {
	JobType         string     `json:"jobType"`
	JobKey          string     `json:"jobKey"`
	ExecutionID     string     `json:"executionId"`
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Progress        int        `json:"progress"` // 0-100
	ProgressMessage string     `json:"progressMessage,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	Result          string     `json:"result,omitempty"` // JSON-encoded result
}

// newRecord creates an Executing record with a fresh execution ID.
func newRecord(jobType, jobKey string) *Record {
	return &Record{
		JobType:     jobType,
		JobKey:      jobKey,
		ExecutionID: uuid.New().String(),
		Status:      StatusExecuting,
		StartedAt:   time.Now().UTC(),
		Progress:    0,
	}
}

// SetProgress updates progress, clamped to [0,100].
func (r *Record) SetProgress(progress int, message string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	r.Progress = progress
	if message != "" {
		r.ProgressMessage = message
	}
}

// markCompleted transitions the record to the completed state.
func (r *Record) markCompleted(result string) {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.Progress = 100
	r.CompletedAt = &now
	r.Result = result
}

// markFailed transitions the record to the failed state.
func (r *Record) markFailed(message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.ErrorMessage = message
}

// Duration returns how long the execution took, or has been running.
func (r *Record) Duration() time.Duration {
	end := time.Now().UTC()
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt)
}
