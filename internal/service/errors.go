package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/canonify/internal/store"
)

// Sentinel errors returned by the file services. The API layer maps them to
// HTTP status codes with errors.Is.
var (
	// ErrNoFiles indicates an upload without any file parts.
	// API layer should map this to HTTP 422 Unprocessable Entity.
	ErrNoFiles = errors.New("no files supplied")

	// ErrDisallowedType indicates a part whose declared content type is not
	// in the configured allow-list.
	// API layer should map this to HTTP 400 Bad Request.
	ErrDisallowedType = errors.New("file type not allowed")

	// ErrContentMismatch indicates a part whose bytes do not match its
	// declared content type.
	ErrContentMismatch = errors.New("file content does not match its content type")

	// ErrFileNotFound indicates that the requested record does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// FileServiceError wraps errors from the file services with context.
type FileServiceError struct {
	// Operation is the operation that failed (e.g., "upload", "get_file")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for FileServiceError.
func (e *FileServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("file service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *FileServiceError) Unwrap() error {
	return e.Err
}

// NewFileServiceError creates a new FileServiceError.
// Not-found errors from the store are returned as ErrFileNotFound.
func NewFileServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, store.ErrFileNotFound) {
		return ErrFileNotFound
	}
	return &FileServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
