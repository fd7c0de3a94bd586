package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation and lookup failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrCapExhausted    = errors.New("daily cap exhausted")
	ErrUnknownParser   = errors.New("unknown parser key")
	ErrInvalidSource   = errors.New("invalid source")
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidDay      = errors.New("invalid day")
	ErrNegativeCap     = errors.New("cap must not be negative")
	ErrDuplicateSource = errors.New("duplicate source id")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
