package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/store"
)

// MockFileStore is an in-memory store.FileStore. Function fields override the
// in-memory behavior of individual methods.
type MockFileStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.FileRecord

	CreateFn      func(ctx context.Context, file *domain.FileRecord) error
	GetByIDFn     func(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)
	GetStatusFn   func(ctx context.Context, id uuid.UUID) (domain.FileStatus, error)
	GetChildrenFn func(ctx context.Context, parentID uuid.UUID) ([]*domain.FileRecord, error)
	UpdateStateFn func(ctx context.Context, file *domain.FileRecord, from domain.FileStatus) error

	// Calls counts invocations per method name.
	Calls map[string]int
}

var _ store.FileStore = (*MockFileStore)(nil)

// NewMockFileStore creates an empty MockFileStore.
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		records: make(map[uuid.UUID]domain.FileRecord),
		Calls:   make(map[string]int),
	}
}

func (m *MockFileStore) track(name string) {
	m.mu.Lock()
	m.Calls[name]++
	m.mu.Unlock()
}

// Put stores a copy of file without any checks.
func (m *MockFileStore) Put(file *domain.FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[file.ID] = *file
}

// Get returns a copy of the stored record, or nil.
func (m *MockFileStore) Get(id uuid.UUID) *domain.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	return &rec
}

// All returns copies of every stored record.
func (m *MockFileStore) All() []*domain.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.FileRecord, 0, len(m.records))
	for _, rec := range m.records {
		rec := rec
		out = append(out, &rec)
	}
	return out
}

// Snapshot captures the current records and returns a func restoring them.
func (m *MockFileStore) Snapshot() func() {
	m.mu.Lock()
	saved := make(map[uuid.UUID]domain.FileRecord, len(m.records))
	for id, rec := range m.records {
		saved[id] = rec
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.records = saved
		m.mu.Unlock()
	}
}

// Create implements store.FileStore
func (m *MockFileStore) Create(ctx context.Context, file *domain.FileRecord) error {
	m.track("Create")
	if m.CreateFn != nil {
		return m.CreateFn(ctx, file)
	}

	if err := file.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[file.ID]; exists {
		return store.ErrDuplicate
	}
	if file.ParentID != nil {
		parent, ok := m.records[*file.ParentID]
		if !ok || !parent.FileType.IsPDF() || parent.ParentID != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidParent)
		}
	}
	m.records[file.ID] = *file
	return nil
}

// GetByID implements store.FileStore
func (m *MockFileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	m.track("GetByID")
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	rec := m.Get(id)
	if rec == nil {
		return nil, store.ErrFileNotFound
	}
	return rec, nil
}

// GetByIDForUpdate implements store.FileStore
func (m *MockFileStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	return m.GetByID(ctx, id)
}

// GetStatus implements store.FileStore
func (m *MockFileStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.FileStatus, error) {
	m.track("GetStatus")
	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, id)
	}

	rec := m.Get(id)
	if rec == nil {
		return "", store.ErrFileNotFound
	}
	return rec.Status, nil
}

// GetChildren implements store.FileStore
func (m *MockFileStore) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.FileRecord, error) {
	m.track("GetChildren")
	if m.GetChildrenFn != nil {
		return m.GetChildrenFn(ctx, parentID)
	}

	var children []*domain.FileRecord
	for _, rec := range m.All() {
		if rec.ParentID != nil && *rec.ParentID == parentID {
			children = append(children, rec)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return *children[i].PageNumber < *children[j].PageNumber
	})
	return children, nil
}

// UpdateState implements store.FileStore
func (m *MockFileStore) UpdateState(ctx context.Context, file *domain.FileRecord, from domain.FileStatus) error {
	m.track("UpdateState")
	if m.UpdateStateFn != nil {
		return m.UpdateStateFn(ctx, file, from)
	}

	if err := file.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[file.ID]
	if !ok {
		return store.ErrFileNotFound
	}
	if stored.Status != from {
		return store.ErrStaleStatus
	}
	m.records[file.ID] = *file
	return nil
}

// WithTx implements store.FileStore
func (m *MockFileStore) WithTx(tx *sql.Tx) store.FileStore {
	return m
}
