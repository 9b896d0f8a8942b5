package coordinator

import (
	"errors"
	"fmt"
)

// Domain errors for the coordinator package.
//
// These errors can be checked using errors.Is() / errors.As():
//
//	if errors.Is(err, coordinator.ErrShutDown) {
//	    // coordinator torn down, stop retrying
//	}
var (
	// ErrShutDown is returned when an operation is attempted after Shutdown.
	ErrShutDown = errors.New("coordinator: shut down")

	// ErrNoUpdateFunc is returned when a coordinator is constructed without
	// an update function.
	ErrNoUpdateFunc = errors.New("coordinator: update function is required")
)

// UpdateFailedError signals an expected, transient fetch failure such as a
// network timeout or an offline device.
//
// Update functions raise it to tell the coordinator the failure is routine:
// the coordinator records it as state (LastUpdateSuccess false) and retries
// on the next interval instead of escalating. Log noise is suppressed after
// the first consecutive failure.
type UpdateFailedError struct {
	// Message describes the failure for logs and diagnostics.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *UpdateFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update failed: %s: %v", e.Message, e.Err)
	}
	return "update failed: " + e.Message
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// NewUpdateFailed wraps err as an expected transient fetch failure.
func NewUpdateFailed(message string, err error) error {
	return &UpdateFailedError{Message: message, Err: err}
}

// AuthFailedError signals that the data source rejected the hub's
// credentials.
//
// Unlike transient failures this is not retried silently: the coordinator
// invokes the configured OnAuthFailed hook so the owning integration can
// start a re-authentication flow, and FirstRefresh propagates it so setup
// can be aborted.
type AuthFailedError struct {
	// Message describes the rejection for logs and diagnostics.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *AuthFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return "authentication failed: " + e.Message
}

func (e *AuthFailedError) Unwrap() error {
	return e.Err
}

// NewAuthFailed wraps err as an authentication failure.
func NewAuthFailed(message string, err error) error {
	return &AuthFailedError{Message: message, Err: err}
}
