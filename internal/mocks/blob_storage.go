package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/canonify/internal/platform/storage"
)

// MockBlobStorage keeps blobs in memory.
type MockBlobStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte

	PutFn func(ctx context.Context, key string, data []byte) error
	GetFn func(ctx context.Context, key string) ([]byte, error)
}

// NewMockBlobStorage creates an empty MockBlobStorage.
func NewMockBlobStorage() *MockBlobStorage {
	return &MockBlobStorage{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (m *MockBlobStorage) Put(ctx context.Context, key string, data []byte) error {
	if m.PutFn != nil {
		return m.PutFn(ctx, key, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the blob stored under key or storage.ErrObjectNotFound.
func (m *MockBlobStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

// Keys returns the stored keys.
func (m *MockBlobStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}
