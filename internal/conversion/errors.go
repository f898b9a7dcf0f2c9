package conversion

import (
	"errors"
	"fmt"
)

var (
	// ErrConversion is matched by every error this package returns.
	ErrConversion = errors.New("conversion failed")

	// ErrUnsupportedFormat means the input is not a format the engine handles.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptInput means the input claims a supported format but cannot be decoded.
	ErrCorruptInput = errors.New("corrupt input")
)

// ConversionError records which engine operation failed.
type ConversionError struct {
	Op  string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConversion, e.Op, e.Err)
}

// Unwrap exposes both ErrConversion and the underlying cause.
func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, e.Err}
}

func newError(op string, kind error, cause error) error {
	if cause == nil {
		return &ConversionError{Op: op, Err: kind}
	}
	return &ConversionError{Op: op, Err: fmt.Errorf("%w: %v", kind, cause)}
}
