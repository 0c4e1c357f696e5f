package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Errors returned by this module wrap one of these, so
// callers match them with errors.Is.
var (
	// ErrConfiguration is returned when the worker count is invalid or is
	// changed after the pool has started.
	ErrConfiguration = errors.New("threadcache: configuration error")

	// ErrNotRunning is returned when submitting to a pool that was shut down.
	ErrNotRunning = errors.New("threadcache: pool is not running")

	// ErrInvalidArgument is returned for programming errors such as waiting
	// on an empty pending set or submitting a handle twice.
	ErrInvalidArgument = errors.New("threadcache: invalid argument")
)

// ConfigurationError wraps ErrConfiguration with a reason.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InvalidArgumentError wraps ErrInvalidArgument with a reason.
func InvalidArgumentError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// TaskExecutionError records a failed Execute call: either a returned error
// or a recovered panic.
type TaskExecutionError struct {
	TaskID TaskID
	Name   string
	Err    error
	Panic  any
	Stack  []byte
}

// Error implements error.
func (e *TaskExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("threadcache: %s (%s) panicked: %v", e.TaskID, e.Name, e.Panic)
	}
	return fmt.Sprintf("threadcache: %s (%s) failed: %v", e.TaskID, e.Name, e.Err)
}

// Unwrap exposes the error returned by the task, if any.
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// IsPanic reports whether the task panicked rather than returning an error.
func (e *TaskExecutionError) IsPanic() bool {
	return e.Panic != nil
}

// AsTaskExecutionError is a shorthand for errors.As with *TaskExecutionError.
func AsTaskExecutionError(err error) (*TaskExecutionError, bool) {
	var te *TaskExecutionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
