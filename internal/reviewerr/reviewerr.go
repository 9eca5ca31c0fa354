// Package reviewerr defines stable error codes for the analysis core.
//
// Benign contention (another execution already owns a lock or status slot)
// is never represented as an error; callers signal it with an absent value.
// Errors carry a stable code so the surrounding service can map them to
// user-visible behavior without string matching.
package reviewerr

import (
	"errors"
	"fmt"
)

// Code identifies a failure mode.
type Code string

const (
	// BackendUnavailable indicates the shared cache backend is unreachable.
	BackendUnavailable Code = "BACKEND_UNAVAILABLE"
	// SerializationFailed indicates a cached value could not be encoded or decoded.
	SerializationFailed Code = "SERIALIZATION_FAILED"
	// LockLost indicates an operation discovered its lock is no longer owned.
	LockLost Code = "LOCK_LOST"
	// ExecutionFinalized indicates a finalize call on an already-terminal context.
	ExecutionFinalized Code = "EXECUTION_FINALIZED"
	// ExecutionDisposed indicates use of a context after disposal.
	ExecutionDisposed Code = "EXECUTION_DISPOSED"
	// HistoryUnavailable indicates the durable history store failed.
	HistoryUnavailable Code = "HISTORY_UNAVAILABLE"
	// Internal indicates an unexpected error.
	Internal Code = "INTERNAL_ERROR"
)

// CoreError is an error with a stable code and optional cause.
type CoreError struct {
	Code    Code
	Message string
	cause   error
}

// New creates a CoreError without a cause.
func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// Wrap creates a CoreError wrapping a cause.
func Wrap(code Code, message string, cause error) *CoreError {
	return &CoreError{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CoreError) Unwrap() error {
	return e.cause
}

// IsCode reports whether err or any error in its chain carries the code.
func IsCode(err error, code Code) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
