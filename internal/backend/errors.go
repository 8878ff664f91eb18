package backend

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable means the backend process or service could not be
// reached at all; no fragments were produced.
var ErrUnavailable = errors.New("assistant backend unavailable")

// TimeoutError means no fragment arrived within the quiescence window.
// Fragments delivered before the timeout stand; the turn is incomplete.
type TimeoutError struct {
	Window time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("assistant produced no output for %s", e.Window)
}

// BackendError means the backend reported an internal failure mid-stream.
type BackendError struct {
	Message  string
	ExitCode int
}

func (e *BackendError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("assistant backend failed (exit %d): %s", e.ExitCode, e.Message)
	}
	return "assistant backend failed: " + e.Message
}

// IsTimeout reports whether err is (or wraps) a quiescence timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
