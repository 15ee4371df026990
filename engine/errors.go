package engine

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed, missing, or out-of-range input.
// The caller must fix the request and resend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidLocationError is the coordinate specialization of a validation
// failure. It maps to the same HTTP status but is distinguishable.
type InvalidLocationError struct {
	Message string
}

func (e *InvalidLocationError) Error() string { return e.Message }

// As lets errors.As match an InvalidLocationError as a ValidationError.
func (e *InvalidLocationError) As(target any) bool {
	if t, ok := target.(**ValidationError); ok {
		*t = &ValidationError{Field: "location", Message: e.Message}
		return true
	}
	return false
}

// NotFoundError reports a missing issue, comment, or user.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ForbiddenError reports an authenticated but unauthorized caller.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// StoreUnavailableError reports a backing-store timeout or outage. The
// operation is retryable by the caller with backoff.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("backing store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient store failure.
func IsRetryable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
