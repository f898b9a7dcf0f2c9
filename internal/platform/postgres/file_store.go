package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/store"
)

const fileColumns = `id, name, original_filename, path, file_type, input_resolution, status,
	output_path, output_resolution, page_number, parent_id, failure_reason, created_at, updated_at`

// PostgresFileStore implements the store.FileStore interface
// using a PostgreSQL database as the storage backend.
type PostgresFileStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresFileStore creates a new PostgreSQL implementation of the FileStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresFileStore(db store.DBTX, logger *slog.Logger) *PostgresFileStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresFileStore{
		db:     db,
		logger: logger.With(slog.String("component", "file_store")),
	}
}

// Ensure PostgresFileStore implements store.FileStore interface
var _ store.FileStore = (*PostgresFileStore)(nil)

// Create implements store.FileStore.Create
func (s *PostgresFileStore) Create(ctx context.Context, file *domain.FileRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := file.Validate(); err != nil {
		log.Warn("file validation failed during create",
			slog.String("error", err.Error()),
			slog.String("file_id", file.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	if file.ParentID == nil {
		return s.insert(ctx, file)
	}

	// The parent row is share-locked until the page is inserted. A store
	// bound to a *sql.Tx already runs inside its caller's transaction.
	if db, ok := s.db.(store.TxBeginner); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return s.WithTx(tx).(*PostgresFileStore).insertPage(ctx, file)
		})
	}
	return s.insertPage(ctx, file)
}

func (s *PostgresFileStore) insertPage(ctx context.Context, file *domain.FileRecord) error {
	if err := s.checkParent(ctx, *file.ParentID); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("rejected page record with invalid parent",
			slog.String("file_id", file.ID.String()),
			slog.String("parent_id", file.ParentID.String()))
		return err
	}
	return s.insert(ctx, file)
}

func (s *PostgresFileStore) insert(ctx context.Context, file *domain.FileRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		file.ID,
		file.Name,
		file.OriginalFilename,
		file.Path,
		file.FileType,
		file.InputResolution,
		file.Status,
		file.OutputPath,
		file.OutputResolution,
		file.PageNumber,
		file.ParentID,
		file.FailureReason,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create file record",
			slog.String("error", err.Error()),
			slog.String("file_id", file.ID.String()))
		return MapError(err)
	}

	log.Debug("file record created",
		slog.String("file_id", file.ID.String()),
		slog.String("status", string(file.Status)))
	return nil
}

// checkParent verifies that parentID names a top-level pdf record.
func (s *PostgresFileStore) checkParent(ctx context.Context, parentID uuid.UUID) error {
	var fileType string
	var grandparent *uuid.UUID

	err := s.db.QueryRowContext(ctx,
		`SELECT file_type, parent_id FROM files WHERE id = $1 FOR SHARE`,
		parentID,
	).Scan(&fileType, &grandparent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: parent %s does not exist: %w", store.ErrInvalidEntity, parentID, domain.ErrInvalidParent)
		}
		return MapError(err)
	}

	if domain.FileType(fileType) != domain.FileTypePDF || grandparent != nil {
		return fmt.Errorf("%w: parent %s is not a top-level pdf: %w", store.ErrInvalidEntity, parentID, domain.ErrInvalidParent)
	}
	return nil
}

// GetByID implements store.FileStore.GetByID
func (s *PostgresFileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	return s.getByID(ctx, id, false)
}

// GetByIDForUpdate implements store.FileStore.GetByIDForUpdate
func (s *PostgresFileStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	return s.getByID(ctx, id, true)
}

func (s *PostgresFileStore) getByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.FileRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	file, err := scanFile(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("file not found", slog.String("file_id", id.String()))
			return nil, store.ErrFileNotFound
		}
		log.Error("failed to get file record",
			slog.String("error", err.Error()),
			slog.String("file_id", id.String()))
		return nil, MapError(err)
	}
	return file, nil
}

// GetStatus implements store.FileStore.GetStatus
func (s *PostgresFileStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.FileStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM files WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrFileNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get file status",
			slog.String("error", err.Error()),
			slog.String("file_id", id.String()))
		return "", MapError(err)
	}
	return domain.FileStatus(status), nil
}

// GetChildren implements store.FileStore.GetChildren
func (s *PostgresFileStore) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.FileRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE parent_id = $1 ORDER BY page_number ASC`,
		parentID,
	)
	if err != nil {
		log.Error("failed to query page records",
			slog.String("error", err.Error()),
			slog.String("parent_id", parentID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var children []*domain.FileRecord
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}
		children = append(children, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating page records: %w", err)
	}
	return children, nil
}

// UpdateState implements store.FileStore.UpdateState
func (s *PostgresFileStore) UpdateState(ctx context.Context, file *domain.FileRecord, from domain.FileStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := file.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET path = $2, status = $3, output_path = $4, output_resolution = $5,
			failure_reason = $6, updated_at = $7
		WHERE id = $1 AND status = $8
	`,
		file.ID,
		file.Path,
		file.Status,
		file.OutputPath,
		file.OutputResolution,
		file.FailureReason,
		file.UpdatedAt,
		from,
	)
	if err != nil {
		log.Error("failed to update file state",
			slog.String("error", err.Error()),
			slog.String("file_id", file.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrStaleStatus); err != nil {
		if !errors.Is(err, store.ErrStaleStatus) {
			return err
		}

		var exists bool
		if qErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, file.ID,
		).Scan(&exists); qErr != nil {
			return MapError(qErr)
		}
		if !exists {
			return store.ErrFileNotFound
		}
		log.Warn("file status changed concurrently",
			slog.String("file_id", file.ID.String()),
			slog.String("expected_status", string(from)))
		return store.ErrStaleStatus
	}

	log.Debug("file state updated",
		slog.String("file_id", file.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(file.Status)))
	return nil
}

// WithTx implements store.FileStore.WithTx
func (s *PostgresFileStore) WithTx(tx *sql.Tx) store.FileStore {
	return &PostgresFileStore{
		db:     tx,
		logger: s.logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.FileRecord, error) {
	var (
		f        domain.FileRecord
		fileType string
		status   string
		pageNum  sql.NullInt32
	)

	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.OriginalFilename,
		&f.Path,
		&fileType,
		&f.InputResolution,
		&status,
		&f.OutputPath,
		&f.OutputResolution,
		&pageNum,
		&f.ParentID,
		&f.FailureReason,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.FileType = domain.FileType(fileType)
	f.Status = domain.FileStatus(status)
	if pageNum.Valid {
		n := int(pageNum.Int32)
		f.PageNumber = &n
	}
	return &f, nil
}
