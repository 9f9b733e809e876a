package galaxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Error wraps a failed backend call with operation context. StatusCode is
// zero for transport-level failures.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is likely transient: server-side
// errors, throttling, and transport failures are; client rejections
// (malformed workflow, bad credentials, missing resource) are not.
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NotReadyError signals that the remote run behind a workspace has not
// finished yet; the caller should collect again later.
type NotReadyError struct {
	WorkspaceID string
	State       string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("workspace %s not ready: state %s", e.WorkspaceID, e.State)
}

// Retryable is always true: an unfinished run is not a failure.
func (e *NotReadyError) Retryable() bool { return true }

// IsRetryable returns true if the error is likely transient and the call
// should be retried.
func IsRetryable(err error) bool {
	var nr *NotReadyError
	if errors.As(err, &nr) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// IsNotFound returns true if the backend reported a missing resource.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}
