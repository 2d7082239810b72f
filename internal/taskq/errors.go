package taskq

import (
	"errors"
	"fmt"
)

// ErrUnknownTask is returned when an envelope names a task that is not
// registered with the engine.
var ErrUnknownTask = errors.New("unknown task")

// RetryError is raised by a task body when it just wants to be retried.
// It always yields a retry disposition while retries remain and is not
// reported to the exception sink as an error worth paging on.
type RetryError struct {
	Reason string
}

func (e *RetryError) Error() string {
	if e.Reason == "" {
		return "task requested retry"
	}
	return fmt.Sprintf("task requested retry: %s", e.Reason)
}

// Retry builds a RetryError for a task body to return.
func Retry(reason string) error {
	return &RetryError{Reason: reason}
}

// PermanentError wraps an error that should never be retried, e.g. when
// the task was called with bad parameters rather than hitting a flaky
// backend.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
