package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/store"
	"github.com/phrazzld/canonify/internal/task"
)

const taskColumns = `id, type, payload, status, attempts, max_attempts, run_at, locked_at,
	chain, error_message, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// SaveJob persists a job to the database
func (s *PostgresTaskStore) SaveJob(ctx context.Context, job *task.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var chain []byte
	if len(job.Chain) > 0 {
		var err error
		if chain, err = json.Marshal(job.Chain); err != nil {
			return fmt.Errorf("failed to encode task chain: %w", err)
		}
	}

	now := time.Now().UTC()
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, payload, status, attempts, max_attempts, run_at, chain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		task.TaskStatusPending,
		job.Attempts,
		job.MaxAttempts,
		runAt,
		chain,
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", job.ID,
			"task_type", job.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *PostgresTaskStore) GetJob(ctx context.Context, id uuid.UUID) (*task.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return job, nil
}

// ClaimDue moves due pending jobs to processing in a single statement.
// SKIP LOCKED lets several runners claim concurrently without blocking on
// or double-claiming each other's rows.
func (s *PostgresTaskStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*task.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks
		SET status = $1, attempts = attempts + 1, locked_at = $3, updated_at = $3
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = $2 AND run_at <= $3
			ORDER BY run_at, created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		task.TaskStatusProcessing,
		task.TaskStatusPending,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", MapError(err))
	}

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs, nil
}

// Complete marks a processing job completed
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, true, `
		UPDATE tasks
		SET status = $2, locked_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, task.TaskStatusCompleted, time.Now().UTC())
}

// Reschedule returns a processing job to pending
func (s *PostgresTaskStore) Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, errMsg string) error {
	return s.transition(ctx, id, true, `
		UPDATE tasks
		SET status = $2, run_at = $3, error_message = $4, locked_at = NULL, updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`, task.TaskStatusPending, runAt, errMsg, time.Now().UTC())
}

// Release returns a claimed job to pending and refunds its attempt
func (s *PostgresTaskStore) Release(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, true, `
		UPDATE tasks
		SET status = $2, attempts = GREATEST(attempts - 1, 0), locked_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, task.TaskStatusPending, time.Now().UTC())
}

// Fail marks a job permanently failed
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.transition(ctx, id, false, `
		UPDATE tasks
		SET status = $2, error_message = $3, locked_at = NULL, updated_at = $4
		WHERE id = $1
	`, task.TaskStatusFailed, errMsg, time.Now().UTC())
}

// transition runs a single-row status update. When conditional is set a miss
// is reported as ErrStaleStatus if the job exists.
func (s *PostgresTaskStore) transition(
	ctx context.Context,
	id uuid.UUID,
	conditional bool,
	query string,
	args ...any,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", id,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		if !errors.Is(err, store.ErrTaskNotFound) || !conditional {
			return err
		}
		var exists bool
		if qErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id,
		).Scan(&exists); qErr != nil {
			return MapError(qErr)
		}
		if exists {
			return store.ErrStaleStatus
		}
		return store.ErrTaskNotFound
	}
	return nil
}

// GetExpiredLeases returns processing jobs locked before lockedBefore
func (s *PostgresTaskStore) GetExpiredLeases(
	ctx context.Context,
	lockedBefore time.Time,
	limit int,
) ([]*task.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1 AND locked_at < $2
		ORDER BY locked_at ASC
		LIMIT $3
	`, task.TaskStatusProcessing, lockedBefore, limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query expired leases", "error", err)
		return nil, fmt.Errorf("failed to query expired leases: %w", MapError(err))
	}
	return scanJobs(rows)
}

// CountByStatus returns the number of jobs per status
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[task.TaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task counts: %w", err)
	}
	return counts, nil
}

// WithTx returns a new task store that uses the provided transaction
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

func scanJobs(rows *sql.Rows) ([]*task.Job, error) {
	defer func() { _ = rows.Close() }()

	var jobs []*task.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*task.Job, error) {
	var (
		job      task.Job
		payload  []byte
		status   string
		lockedAt sql.NullTime
		chain    []byte
		errMsg   sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.Type,
		&payload,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAt,
		&lockedAt,
		&chain,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = json.RawMessage(payload)
	job.Status = task.TaskStatus(status)
	job.LastError = errMsg.String
	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	if len(chain) > 0 {
		if err := json.Unmarshal(chain, &job.Chain); err != nil {
			return nil, fmt.Errorf("failed to decode task chain: %w", err)
		}
	}
	return &job, nil
}
