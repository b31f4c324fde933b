package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	// Generic errors
	ErrInternal   = errors.New("internal error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrBadRequest = errors.New("bad request")

	// Backpressure signal from the worker pool. Callers should retry later.
	ErrQueueFull = errors.New("queue full")

	// The status cache or result store could not be reached. Distinct from
	// ErrNotFound so callers don't confuse "never existed" with "can't tell
	// right now".
	ErrUnavailable = errors.New("dependency unavailable")

	// Resource-specific errors
	ErrJobNotFound = fmt.Errorf("job %w", ErrNotFound)

	// Validation errors
	ErrValidation = errors.New("validation error")
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapNotFound wraps an error as a not found error with context
func WrapNotFound(resource string, err error) error {
	return fmt.Errorf("%s: %w", resource, errors.Join(ErrNotFound, err))
}

// WrapUnavailable wraps an error as a dependency failure with context
func WrapUnavailable(dependency string, err error) error {
	return fmt.Errorf("%s: %w", dependency, errors.Join(ErrUnavailable, err))
}

// WrapInternal wraps an error as an internal error with context
func WrapInternal(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrInternal, err))
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsQueueFull checks if error is a backpressure signal
func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}

// IsUnavailable checks if error is a dependency failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
