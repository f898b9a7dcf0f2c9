package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"

	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Local stores blobs as files under a root directory of an afero
// filesystem. Keys are relative to that root.
type Local struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

// NewLocal creates a Local backend rooted at root. root may be absolute
// or relative to the working directory.
func NewLocal(fsys afero.Fs, root string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	root = path.Clean(root)
	return &Local{
		fs:     afero.NewBasePathFs(fsys, root),
		root:   root,
		logger: logger.With("component", "storage", "backend", BackendLocal, "root", root),
	}
}

// Put writes data to key, creating parent directories as needed.
func (l *Local) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := l.fs.MkdirAll(path.Dir(key), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", key, err)
	}
	if err := afero.WriteFile(l.fs, key, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	l.logger.Debug("object stored", "key", key, "size", len(data))
	return nil
}

// Get reads the file at key.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return data, nil
}

// FileSystem exposes the storage root read-only for static serving.
func (l *Local) FileSystem() http.FileSystem {
	return afero.NewHttpFs(afero.NewReadOnlyFs(l.fs)).Dir("/")
}
