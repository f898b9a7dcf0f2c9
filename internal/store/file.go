package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
)

// FileStore defines the interface for file record persistence.
type FileStore interface {
	// Create saves a new record. A record with a parent is only accepted when
	// the parent exists, is a pdf and is itself top-level.
	// Returns ErrInvalidEntity (wrapping the domain error) if validation fails.
	Create(ctx context.Context, file *domain.FileRecord) error

	// GetByID retrieves a record by its unique ID.
	// Returns ErrFileNotFound if the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)

	// GetByIDForUpdate is GetByID with a row lock held until the surrounding
	// transaction ends. Only meaningful on a transactional store.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)

	// GetStatus returns only the status of a record.
	// Returns ErrFileNotFound if the record does not exist.
	GetStatus(ctx context.Context, id uuid.UUID) (domain.FileStatus, error)

	// GetChildren returns the page records of a pdf ordered by page number.
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.FileRecord, error)

	// UpdateState persists the mutable state of file (path, status, outputs,
	// failure reason) provided the stored status still equals from.
	// Returns ErrFileNotFound if the record is gone and ErrStaleStatus if the
	// stored status differs from from.
	UpdateState(ctx context.Context, file *domain.FileRecord, from domain.FileStatus) error

	// WithTx returns a new FileStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) FileStore
}
