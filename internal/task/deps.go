package task

import (
	"context"
	"errors"

	"github.com/phrazzld/canonify/internal/domain"
)

// Common errors
var (
	ErrNilStorage    = errors.New("blob storage cannot be nil")
	ErrNilConverter  = errors.New("converter cannot be nil")
	ErrNilEmitter    = errors.New("event emitter cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
	ErrEmptyRecordID = errors.New("record ID cannot be empty")
	ErrEmptyPath     = errors.New("storage path cannot be empty")
)

// BlobStorage reads and writes file payloads by key
type BlobStorage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Converter produces the canonical rendition of an image
type Converter interface {
	// ConvertToCanonical re-encodes src as PNG at target and returns the
	// encoded bytes with the resolution actually produced.
	ConvertToCanonical(ctx context.Context, src []byte, target domain.Resolution) ([]byte, domain.Resolution, error)
}
