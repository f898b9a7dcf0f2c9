package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusCache struct {
	entries map[uuid.UUID]domain.FileStatus
	getErr  error
	sets    int
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{entries: make(map[uuid.UUID]domain.FileStatus)}
}

func (c *fakeStatusCache) Get(ctx context.Context, id uuid.UUID) (domain.FileStatus, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	status, ok := c.entries[id]
	return status, ok, nil
}

func (c *fakeStatusCache) Set(ctx context.Context, id uuid.UUID, status domain.FileStatus) error {
	c.sets++
	c.entries[id] = status
	return nil
}

func seedPDF(t *testing.T, files *mocks.MockFileStore, pages int) (*domain.FileRecord, []*domain.FileRecord) {
	t.Helper()
	parent, err := domain.NewFileRecord("Ab3xYz_doc.pdf", "doc.pdf", domain.FileTypePDF, "")
	require.NoError(t, err)
	files.Put(parent)

	children := make([]*domain.FileRecord, 0, pages)
	// Insert pages in reverse so ordering comes from the store.
	for n := pages; n >= 1; n-- {
		page, err := domain.NewPageRecord(parent, domain.PageName(parent.Name, n), n, "10x10")
		require.NoError(t, err)
		files.Put(page)
		children = append([]*domain.FileRecord{page}, children...)
	}
	return parent, children
}

func TestNewQueryService(t *testing.T) {
	_, err := NewQueryService(nil, nil, nil)
	assert.Error(t, err)

	q, err := NewQueryService(mocks.NewMockFileStore(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestQueryService_Get(t *testing.T) {
	files := mocks.NewMockFileStore()
	q, err := NewQueryService(files, nil, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	parent, children := seedPDF(t, files, 3)
	image, err := domain.NewFileRecord("Qw12Er_cat.png", "cat.png", domain.FileTypePNG, "5x5")
	require.NoError(t, err)
	files.Put(image)

	t.Run("pdf embeds its pages in order", func(t *testing.T) {
		details, err := q.Get(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, parent.ID, details.ID)
		require.Len(t, details.Images, 3)
		for i, page := range details.Images {
			assert.Equal(t, children[i].ID, page.ID)
			assert.Equal(t, i+1, *page.PageNumber)
		}
	})

	t.Run("page does not embed siblings", func(t *testing.T) {
		details, err := q.Get(ctx, children[1].ID)
		require.NoError(t, err)
		assert.Empty(t, details.Images)
	})

	t.Run("image has no images key", func(t *testing.T) {
		details, err := q.Get(ctx, image.ID)
		require.NoError(t, err)

		raw, err := json.Marshal(details)
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "images")
		assert.Equal(t, "Qw12Er_cat.png", fields["name"])
		assert.Equal(t, "uploading", fields["status"])
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := q.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestQueryService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("without cache", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		q, err := NewQueryService(files, nil, discardLogger())
		require.NoError(t, err)

		rec, err := domain.NewFileRecord("Ab3xYz_a.png", "a.png", domain.FileTypePNG, "1x1")
		require.NoError(t, err)
		files.Put(rec)

		status, err := q.GetStatus(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusUploading, status)

		_, err = q.GetStatus(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("cache miss on terminal status fills cache", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		rec, err := domain.NewFileRecord("Ab3xYz_a.png", "a.png", domain.FileTypePNG, "1x1")
		require.NoError(t, err)
		require.NoError(t, rec.MarkFailed("corrupt input"))
		files.Put(rec)

		status, err := q.GetStatus(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusFailure, status)
		assert.Equal(t, domain.FileStatusFailure, cache.entries[rec.ID])
		assert.Equal(t, 1, files.Calls["GetStatus"])
	})

	t.Run("in-flight status is never cached", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		rec, err := domain.NewFileRecord("Ab3xYz_a.png", "a.png", domain.FileTypePNG, "1x1")
		require.NoError(t, err)
		files.Put(rec)

		status, err := q.GetStatus(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusUploading, status)
		assert.Equal(t, 0, cache.sets)
	})

	t.Run("transition during a read is visible on the next poll", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		id := uuid.New()
		current := domain.FileStatusProcessing
		files.GetStatusFn = func(ctx context.Context, _ uuid.UUID) (domain.FileStatus, error) {
			read := current
			// The worker commits and evicts after the row was read.
			current = domain.FileStatusCompleted
			delete(cache.entries, id)
			return read, nil
		}

		status, err := q.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusProcessing, status)

		status, err = q.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusCompleted, status)
	})

	t.Run("cache hit skips store", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		id := uuid.New()
		cache.entries[id] = domain.FileStatusCompleted

		status, err := q.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusCompleted, status)
		assert.Equal(t, 0, files.Calls["GetStatus"])
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		cache.getErr = errors.New("redis down")
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		rec, err := domain.NewFileRecord("Ab3xYz_a.png", "a.png", domain.FileTypePNG, "1x1")
		require.NoError(t, err)
		files.Put(rec)

		status, err := q.GetStatus(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusUploading, status)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		files := mocks.NewMockFileStore()
		cache := newFakeStatusCache()
		q, err := NewQueryService(files, cache, discardLogger())
		require.NoError(t, err)

		_, err = q.GetStatus(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.Equal(t, 0, cache.sets)
	})
}
