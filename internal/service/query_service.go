package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/store"
)

// StatusCache is an optional read-through cache of record statuses. Only
// terminal statuses are written to it.
type StatusCache interface {
	Get(ctx context.Context, id uuid.UUID) (domain.FileStatus, bool, error)
	Set(ctx context.Context, id uuid.UUID, status domain.FileStatus) error
}

// FileDetails is a record as returned by Get. Images holds the pages of a
// PDF and is omitted for every other record.
type FileDetails struct {
	*domain.FileRecord
	Images []*domain.FileRecord `json:"images,omitempty"`
}

// QueryService is the read-only projection over file records.
type QueryService struct {
	files  store.FileStore
	cache  StatusCache
	logger *slog.Logger
}

// NewQueryService creates a new QueryService. cache may be nil.
func NewQueryService(files store.FileStore, cache StatusCache, logger *slog.Logger) (*QueryService, error) {
	if files == nil {
		return nil, &FileServiceError{Operation: "create_service", Message: "files cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		files:  files,
		cache:  cache,
		logger: logger.With("component", "query_service"),
	}, nil
}

// Get returns the record id, with its pages when it is a PDF parent.
func (q *QueryService) Get(ctx context.Context, id uuid.UUID) (*FileDetails, error) {
	rec, err := q.files.GetByID(ctx, id)
	if err != nil {
		return nil, NewFileServiceError("get_file", "failed to load file", err)
	}

	details := &FileDetails{FileRecord: rec}
	if rec.FileType.IsPDF() && !rec.IsPage() {
		children, err := q.files.GetChildren(ctx, rec.ID)
		if err != nil {
			return nil, NewFileServiceError("get_file", "failed to load pages", err)
		}
		details.Images = children
	}
	return details, nil
}

// GetStatus returns the status of record id. A status read from the store
// is cached only when it is terminal, since a concurrent transition could
// otherwise be overwritten by the value read before it.
func (q *QueryService) GetStatus(ctx context.Context, id uuid.UUID) (domain.FileStatus, error) {
	if q.cache != nil {
		status, ok, err := q.cache.Get(ctx, id)
		if err != nil {
			q.logger.WarnContext(ctx, "status cache read failed", "error", err, "file_id", id)
		} else if ok {
			return status, nil
		}
	}

	status, err := q.files.GetStatus(ctx, id)
	if err != nil {
		return "", NewFileServiceError("get_status", "failed to load status", err)
	}

	if q.cache != nil && status.IsTerminal() {
		if err := q.cache.Set(ctx, id, status); err != nil {
			q.logger.WarnContext(ctx, "status cache write failed", "error", err, "file_id", id)
		}
	}
	return status, nil
}
