package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidFileType is returned for a file type outside the closed set.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrInvalidFileStatus is returned for a status outside the closed set.
	ErrInvalidFileStatus = errors.New("invalid file status")

	// ErrInvalidTransition is returned when a status change would move a
	// record backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidResolution is returned when a resolution is not of the form WxH.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidParent is returned when a page record would hang off a record
	// that is not a top-level PDF.
	ErrInvalidParent = errors.New("invalid parent record")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field wrapping err.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
