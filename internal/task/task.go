package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/store"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeStoreFile persists an uploaded payload and marks its record uploaded.
	TaskTypeStoreFile = "store_file"

	// TaskTypeConvertFile converts a stored file into the canonical format.
	TaskTypeConvertFile = "convert_file"

	// TaskTypeDiagnostic is a no-op task used to check that workers are alive.
	TaskTypeDiagnostic = "diagnostic"
)

// ErrPermanent marks an error that retrying cannot fix. Tasks wrap it to skip
// the remaining retry budget.
var ErrPermanent = errors.New("permanent task failure")

// ErrWorkerLost is recorded when a task's lease expires without an outcome.
var ErrWorkerLost = errors.New("worker lost while processing task")

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Execute runs the task logic inside the given session. Returning an
	// error rolls back everything written through the session since the
	// last checkpoint.
	Execute(ctx context.Context, s Session) error
}

// StandaloneTask is implemented by tasks that write nothing. Run is called
// with no session open, and the job is completed in a short session after.
type StandaloneTask interface {
	Run(ctx context.Context) error
}

// FailureHandler is implemented by tasks that need to record the outcome when
// they fail for good, e.g. by moving their record into a failure state.
type FailureHandler interface {
	OnPermanentFailure(ctx context.Context, s Session, cause error) error
}

// Session is the transactional unit of work handed to one task execution.
// Stores returned by Files and Tasks are bound to the current transaction and
// must be fetched again after Checkpoint.
type Session interface {
	// Files returns the file store bound to the session's transaction.
	Files() store.FileStore

	// Tasks returns the task store bound to the session's transaction.
	Tasks() TaskStore

	// Checkpoint commits the work done so far and continues in a new transaction.
	Checkpoint(ctx context.Context) error

	// AfterCommit registers fn to run once the current transaction commits.
	// Callbacks are discarded on rollback.
	AfterCommit(fn func(ctx context.Context))
}

// SessionFactory opens sessions. RunInSession commits when fn returns nil,
// rolls back otherwise, and always releases the session before returning.
type SessionFactory interface {
	RunInSession(ctx context.Context, fn func(ctx context.Context, s Session) error) error
}

// TaskStore defines the interface for persisting jobs
type TaskStore interface {
	// SaveJob persists a new job in pending state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	// Returns store.ErrTaskNotFound if the job does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// ClaimDue atomically moves up to limit pending jobs whose run time has
	// passed into processing, increments their attempt counter and stamps
	// their lease. Jobs locked by another claimer are skipped.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// Complete marks a processing job completed.
	// Returns store.ErrStaleStatus if the job is no longer processing.
	Complete(ctx context.Context, id uuid.UUID) error

	// Reschedule returns a processing job to pending, to run again at runAt.
	// Returns store.ErrStaleStatus if the job is no longer processing.
	Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, errMsg string) error

	// Release returns a claimed job that never started to pending and gives
	// back the attempt the claim consumed.
	Release(ctx context.Context, id uuid.UUID) error

	// Fail marks a job permanently failed.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// GetExpiredLeases returns processing jobs whose lease was taken before
	// lockedBefore.
	GetExpiredLeases(ctx context.Context, lockedBefore time.Time, limit int) ([]*Job, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[TaskStatus]int, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
