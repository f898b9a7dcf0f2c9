package task

import (
	"context"
	"sync"

	"github.com/phrazzld/canonify/internal/store"
)

// Snapshotter is implemented by in-memory stores whose writes can be undone.
type Snapshotter interface {
	Snapshot() (restore func())
}

// MockSessionFactory runs sessions against in-memory stores. Stores that
// implement Snapshotter get their writes undone when a session rolls back.
type MockSessionFactory struct {
	FileStore store.FileStore
	TaskStore TaskStore

	mu        sync.Mutex
	Commits   int
	Rollbacks int
	active    int
}

var _ SessionFactory = (*MockSessionFactory)(nil)

// NewMockSessionFactory creates a MockSessionFactory over files and tasks.
func NewMockSessionFactory(files store.FileStore, tasks TaskStore) *MockSessionFactory {
	return &MockSessionFactory{FileStore: files, TaskStore: tasks}
}

type mockSession struct {
	factory  *MockSessionFactory
	restore  []func()
	onCommit []func(ctx context.Context)
}

func (s *mockSession) snapshot() {
	s.restore = s.restore[:0]
	for _, st := range []any{s.factory.FileStore, s.factory.TaskStore} {
		if snap, ok := st.(Snapshotter); ok {
			s.restore = append(s.restore, snap.Snapshot())
		}
	}
}

func (s *mockSession) rollback() {
	for _, restore := range s.restore {
		restore()
	}
	s.onCommit = nil
	s.factory.mu.Lock()
	s.factory.Rollbacks++
	s.factory.mu.Unlock()
}

func (s *mockSession) commit(ctx context.Context) {
	s.factory.mu.Lock()
	s.factory.Commits++
	s.factory.mu.Unlock()

	hooks := s.onCommit
	s.onCommit = nil
	for _, fn := range hooks {
		fn(ctx)
	}
}

func (s *mockSession) Files() store.FileStore { return s.factory.FileStore }

func (s *mockSession) Tasks() TaskStore { return s.factory.TaskStore }

func (s *mockSession) AfterCommit(fn func(ctx context.Context)) {
	s.onCommit = append(s.onCommit, fn)
}

func (s *mockSession) Checkpoint(ctx context.Context) error {
	s.commit(ctx)
	s.snapshot()
	return nil
}

// Active returns how many sessions are open.
func (f *MockSessionFactory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// RunInSession implements SessionFactory
func (f *MockSessionFactory) RunInSession(
	ctx context.Context,
	fn func(ctx context.Context, s Session) error,
) (err error) {
	f.mu.Lock()
	f.active++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	s := &mockSession{factory: f}
	s.snapshot()

	defer func() {
		if p := recover(); p != nil {
			s.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, s); err != nil {
		s.rollback()
		return err
	}
	s.commit(ctx)
	return nil
}
