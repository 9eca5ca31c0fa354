package reviewerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(BackendUnavailable, "redis probe failed", cause)

	if !IsCode(err, BackendUnavailable) {
		t.Error("IsCode() = false for the wrapped code")
	}
	if IsCode(err, LockLost) {
		t.Error("IsCode() matched a different code")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() lost the cause chain")
	}
	if got := err.Error(); got != "[BACKEND_UNAVAILABLE] redis probe failed: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(SerializationFailed, "bad payload")
	outer := fmt.Errorf("loading record: %w", inner)

	if !IsCode(outer, SerializationFailed) {
		t.Error("IsCode() failed to unwrap through fmt.Errorf")
	}
	if IsCode(nil, SerializationFailed) {
		t.Error("IsCode(nil) = true")
	}
	if IsCode(errors.New("plain"), SerializationFailed) {
		t.Error("IsCode() matched a plain error")
	}
}
