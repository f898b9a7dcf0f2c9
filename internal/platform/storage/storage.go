package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/phrazzld/canonify/internal/config"
	"github.com/spf13/afero"
)

var (
	// ErrObjectNotFound is returned by Get when nothing is stored under the key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty keys and keys escaping the root.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrUnknownBackend is returned by New for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Backend names accepted in configuration.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Storage reads and writes whole blobs by key.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocal(afero.NewOsFs(), cfg.Root, logger), nil
	case BackendMinio:
		return NewMinio(ctx, cfg, logger)
	case BackendS3:
		return NewS3(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// cleanKey normalizes key and rejects keys that are empty, absolute or
// reach outside the storage root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
