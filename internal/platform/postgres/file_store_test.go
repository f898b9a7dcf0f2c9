package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileColumnNames = []string{
	"id", "name", "original_filename", "path", "file_type", "input_resolution", "status",
	"output_path", "output_resolution", "page_number", "parent_id", "failure_reason",
	"created_at", "updated_at",
}

func TestPostgresFileStore_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("top-level record", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		rec, err := domain.NewFileRecord("abc123_a.png", "a.png", domain.FileTypePNG, "10x10")
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO files").
			WithArgs(rec.ID, rec.Name, sqlmock.AnyArg(), sqlmock.AnyArg(), "png", sqlmock.AnyArg(),
				"uploading", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(ctx, rec))
	})

	t.Run("invalid record never reaches the database", func(t *testing.T) {
		db, _ := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		err := s.Create(ctx, &domain.FileRecord{ID: uuid.New()})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("page of a non-pdf parent", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		parent, err := domain.NewFileRecord("abc123_doc.pdf", "doc.pdf", domain.FileTypePDF, "")
		require.NoError(t, err)
		page, err := domain.NewPageRecord(parent, "doc_page_1.png", 1, "")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT file_type, parent_id FROM files WHERE id").
			WithArgs(parent.ID).
			WillReturnRows(sqlmock.NewRows([]string{"file_type", "parent_id"}).AddRow("png", nil))
		mock.ExpectRollback()

		err = s.Create(ctx, page)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrInvalidParent)
	})

	t.Run("page of a missing parent", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		parent, err := domain.NewFileRecord("abc123_doc.pdf", "doc.pdf", domain.FileTypePDF, "")
		require.NoError(t, err)
		page, err := domain.NewPageRecord(parent, "doc_page_1.png", 1, "")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT file_type, parent_id FROM files WHERE id").
			WithArgs(parent.ID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		assert.ErrorIs(t, s.Create(ctx, page), domain.ErrInvalidParent)
	})

	t.Run("page of a pdf parent", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		parent, err := domain.NewFileRecord("abc123_doc.pdf", "doc.pdf", domain.FileTypePDF, "")
		require.NoError(t, err)
		page, err := domain.NewPageRecord(parent, "doc_page_2.png", 2, "1240x1754")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT file_type, parent_id FROM files WHERE id").
			WithArgs(parent.ID).
			WillReturnRows(sqlmock.NewRows([]string{"file_type", "parent_id"}).AddRow("pdf", nil))
		mock.ExpectExec("INSERT INTO files").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Create(ctx, page))
	})
}

func TestPostgresFileStore_GetByID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		id := uuid.New()
		parentID := uuid.New()
		now := time.Now().UTC()
		mock.ExpectQuery("SELECT (.+) FROM files WHERE id = \\$1 FOR UPDATE").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(fileColumnNames).AddRow(
				id.String(), "doc_page_1.png", nil, "scratch/doc_page_1.png", "png", "1240x1754",
				"completed", "scratch/doc_page_1_converted.png", "3500x3500", int64(1),
				parentID.String(), nil, now, now,
			))

		rec, err := s.GetByIDForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Nil(t, rec.OriginalFilename)
		assert.Equal(t, domain.FileStatusCompleted, rec.Status)
		require.NotNil(t, rec.PageNumber)
		assert.Equal(t, 1, *rec.PageNumber)
		require.NotNil(t, rec.ParentID)
		assert.Equal(t, parentID, *rec.ParentID)
		assert.Nil(t, rec.FailureReason)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())

		mock.ExpectQuery("SELECT (.+) FROM files WHERE id").WillReturnError(sql.ErrNoRows)

		_, err := s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrFileNotFound)
	})
}

func TestPostgresFileStore_GetStatus(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	s := NewPostgresFileStore(db, discardLogger())

	id := uuid.New()
	mock.ExpectQuery("SELECT status FROM files WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectQuery("SELECT status FROM files WHERE id").
		WillReturnError(sql.ErrNoRows)

	status, err := s.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusProcessing, status)

	_, err = s.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestPostgresFileStore_GetChildren(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	s := NewPostgresFileStore(db, discardLogger())

	parentID := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(fileColumnNames)
	for i := 1; i <= 2; i++ {
		rows.AddRow(uuid.New().String(), "p.png", nil, nil, "png", nil, "uploading",
			nil, nil, int64(i), parentID.String(), nil, now, now)
	}
	mock.ExpectQuery("FROM files WHERE parent_id = \\$1 ORDER BY page_number").
		WithArgs(parentID).
		WillReturnRows(rows)

	children, err := s.GetChildren(context.Background(), parentID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, 1, *children[0].PageNumber)
	assert.Equal(t, 2, *children[1].PageNumber)
}

func TestPostgresFileStore_UpdateState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	uploaded := func(t *testing.T) *domain.FileRecord {
		rec, err := domain.NewFileRecord("abc123_a.png", "a.png", domain.FileTypePNG, "")
		require.NoError(t, err)
		require.NoError(t, rec.MarkUploaded("scratch/abc123_a.png"))
		return rec
	}

	t.Run("success", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())
		rec := uploaded(t)

		mock.ExpectExec("UPDATE files").
			WithArgs(rec.ID, sqlmock.AnyArg(), "uploaded", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), "uploading").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateState(ctx, rec, domain.FileStatusUploading))
	})

	t.Run("stale status", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())
		rec := uploaded(t)

		mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(rec.ID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, s.UpdateState(ctx, rec, domain.FileStatusUploading), store.ErrStaleStatus)
	})

	t.Run("missing record", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresFileStore(db, discardLogger())
		rec := uploaded(t)

		mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, s.UpdateState(ctx, rec, domain.FileStatusUploading), store.ErrFileNotFound)
	})
}

func TestPostgresFileStore_WithTx(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	s := NewPostgresFileStore(db, discardLogger())

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	txStore := s.WithTx(tx)
	require.IsType(t, &PostgresFileStore{}, txStore)
	assert.Same(t, tx, txStore.(*PostgresFileStore).db)

	require.NoError(t, tx.Rollback())
}
