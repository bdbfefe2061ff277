package models

import (
	"errors"
	"fmt"
)

// ValidationError represents malformed input: a bad date, an out-of-range
// year, an unknown station or an unscorable value. It is never retried.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// StorageError wraps a failure of the underlying store
type StorageError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the operation may succeed when retried
func (e *StorageError) IsTransient() bool {
	return e.Transient
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// IsTransient reports whether err, or anything it wraps, is retryable
func IsTransient(err error) bool {
	var t interface{ IsTransient() bool }
	if errors.As(err, &t) {
		return t.IsTransient()
	}
	return false
}

// ErrorKind names the taxonomy bucket of err for summaries and metrics
func ErrorKind(err error) string {
	var ve *ValidationError
	var se *StorageError
	var nf *NotFoundError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &se):
		return "storage"
	case errors.As(err, &nf):
		return "not_found"
	default:
		return "internal"
	}
}
