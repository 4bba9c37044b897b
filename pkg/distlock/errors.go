package distlock

import (
	"errors"
	"fmt"
)

var (
	// ErrLockBusy signals that the lock is currently held by another owner.
	// It is expected contention, not a backend failure.
	ErrLockBusy = errors.New("distlock busy")
	// ErrRetryable classifies transient backend failures safe to retry.
	ErrRetryable = errors.New("distlock retryable error")
	// ErrFatal classifies non-retryable backend failures (bad credentials,
	// invalid owner id, permission denied). A fatal error aborts the worker.
	ErrFatal = errors.New("distlock fatal error")
	// ErrInvalidArgument classifies invalid caller/strategy arguments.
	ErrInvalidArgument = errors.New("distlock invalid argument")
	// ErrNotInitialized classifies operations on uninitialized components.
	ErrNotInitialized = errors.New("distlock not initialized")
	// ErrClosed classifies operations performed on closed components.
	ErrClosed = errors.New("distlock closed")
)

func distlockError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// ErrorClass is the worker-side classification of a strategy failure.
type ErrorClass int

const (
	// ClassRetryable failures are retried with bounded backoff.
	ClassRetryable ErrorClass = iota
	// ClassFatal failures abort the worker and surface to its caller.
	ClassFatal
)

// Classifier maps strategy errors to retryable or fatal. ErrLockBusy is
// never passed to a classifier; contention is handled before classification.
type Classifier func(err error) ErrorClass

// DefaultClassifier treats errors wrapping ErrFatal as fatal and everything
// else as retryable.
func DefaultClassifier(err error) ErrorClass {
	if errors.Is(err, ErrFatal) {
		return ClassFatal
	}
	return ClassRetryable
}
