package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/store"
	"github.com/phrazzld/canonify/internal/task"
)

// SessionFactory opens transactional task sessions on a database.
type SessionFactory struct {
	db     *sql.DB
	files  store.FileStore
	tasks  task.TaskStore
	logger *slog.Logger
}

var _ task.SessionFactory = (*SessionFactory)(nil)

// NewSessionFactory creates a SessionFactory whose sessions bind files and
// tasks to their transaction.
func NewSessionFactory(db *sql.DB, files store.FileStore, tasks task.TaskStore, logger *slog.Logger) *SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFactory{
		db:     db,
		files:  files,
		tasks:  tasks,
		logger: logger.With(slog.String("component", "session")),
	}
}

// RunInSession implements task.SessionFactory. The transaction is committed
// when fn returns nil and rolled back when it returns an error or panics.
// After-commit callbacks run only for transactions that committed.
func (f *SessionFactory) RunInSession(
	ctx context.Context,
	fn func(ctx context.Context, s task.Session) error,
) error {
	log := logger.FromContextOrDefault(ctx, f.logger)

	s := &session{factory: f}
	if err := s.begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to roll back session after panic",
					slog.String("error", err.Error()),
					slog.Any("panic", p))
			}
			// ALLOW-PANIC: Propagating caught panic from session
			panic(p)
		}
	}()

	if err := fn(ctx, s); err != nil {
		if rbErr := s.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to roll back session",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("error rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		log.Debug("rolled back session due to error", slog.String("error", err.Error()))
		return err
	}

	return s.commit(ctx)
}

type session struct {
	factory  *SessionFactory
	tx       *sql.Tx
	onCommit []func(ctx context.Context)
}

func (s *session) begin(ctx context.Context) error {
	tx, err := s.factory.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *session) commit(ctx context.Context) error {
	if err := s.tx.Commit(); err != nil {
		s.onCommit = nil
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	hooks := s.onCommit
	s.onCommit = nil
	for _, fn := range hooks {
		fn(ctx)
	}
	return nil
}

func (s *session) Files() store.FileStore {
	return s.factory.files.WithTx(s.tx)
}

func (s *session) Tasks() task.TaskStore {
	return s.factory.tasks.WithTx(s.tx)
}

func (s *session) AfterCommit(fn func(ctx context.Context)) {
	s.onCommit = append(s.onCommit, fn)
}

func (s *session) Checkpoint(ctx context.Context) error {
	if err := s.commit(ctx); err != nil {
		return err
	}
	return s.begin(ctx)
}
