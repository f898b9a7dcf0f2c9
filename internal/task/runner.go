package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/platform/logger"
)

// leaseBatchSize bounds how many expired leases one sweep handles.
const leaseBatchSize = 100

// ErrRunnerNotRunning is returned by Health when the runner is stopped.
var ErrRunnerNotRunning = errors.New("task runner is not running")

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for claimed jobs waiting for a worker
	QueueSize int

	// PollInterval defines how often the store is checked for due jobs
	// when nothing wakes the poller earlier
	PollInterval time.Duration

	// LeaseTimeout defines how long a job can be in processing state
	// before its worker is presumed lost. It must exceed the longest
	// expected execution.
	LeaseTimeout time.Duration

	// StuckTaskCheckInterval defines how often to check for expired leases
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// Retry controls redelivery of failed jobs
	Retry RetryPolicy
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		PollInterval:           time.Second,
		LeaseTimeout:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		Retry:                  DefaultRetryPolicy(),
	}
}

// FailureReporter receives jobs that failed for good.
type FailureReporter interface {
	CaptureTaskFailure(ctx context.Context, taskID uuid.UUID, taskType string, err error)
}

// HealthReport describes the state of the runner and its backlog.
type HealthReport struct {
	Running bool               `json:"running"`
	Workers int                `json:"workers"`
	Busy    int                `json:"busy"`
	Queued  int                `json:"queued"`
	Jobs    map[TaskStatus]int `json:"jobs"`
}

// TaskRunner claims due jobs from the store and executes them on a pool of
// workers. Each execution runs in its own session; the job is only marked
// completed, and its chained jobs only submitted, when that session commits.
type TaskRunner struct {
	store      TaskStore
	sessions   SessionFactory
	registry   *Registry
	queue      *JobQueue
	wake       chan struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	reporter   FailureReporter
	now        func() time.Time
	running    atomic.Bool
	busy       atomic.Int32
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	store TaskStore,
	sessions SessionFactory,
	registry *Registry,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	defaults := DefaultTaskRunnerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.LeaseTimeout <= 0 {
		config.LeaseTimeout = defaults.LeaseTimeout
	}
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = defaults.StuckTaskCheckInterval
	}
	if config.Retry.MaxRetries < 0 {
		config.Retry.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		sessions:   sessions,
		registry:   registry,
		queue:      NewJobQueue(config.QueueSize, logger),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SetFailureReporter sets where permanent failures are reported
func (r *TaskRunner) SetFailureReporter(reporter FailureReporter) {
	r.reporter = reporter
}

// Enqueue saves job inside s. The job becomes visible to workers when s
// commits, and the poller is woken at that point.
func (r *TaskRunner) Enqueue(ctx context.Context, s Session, job *Job) error {
	r.prepare(job)
	if err := s.Tasks().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	s.AfterCommit(func(context.Context) { r.Notify() })
	return nil
}

// Submit saves a standalone task in its own session.
func (r *TaskRunner) Submit(ctx context.Context, t Task) error {
	return r.sessions.RunInSession(ctx, func(ctx context.Context, s Session) error {
		return r.Enqueue(ctx, s, NewJob(t))
	})
}

// Notify wakes the poller without waiting for the next poll interval.
func (r *TaskRunner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start recovers abandoned jobs and begins processing
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(2)
	go r.poller()
	go r.stuckTaskMonitor()

	r.running.Store(true)
	r.logger.Info("task runner started",
		"workers", r.config.WorkerCount,
		"queue_size", r.config.QueueSize,
		"max_attempts", r.config.Retry.MaxAttempts())
	return nil
}

// Stop gracefully shuts down the task runner. Running jobs finish; claimed
// jobs that never started are handed back to the store.
func (r *TaskRunner) Stop() {
	r.running.Store(false)
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()

	ctx := context.Background()
	for _, job := range r.queue.Drain() {
		if err := r.store.Release(ctx, job.ID); err != nil {
			r.logger.Error("failed to release unstarted task",
				"task_id", job.ID,
				"task_type", job.Type,
				"error", err)
		}
	}
	r.logger.Info("task runner stopped")
}

// Recover handles jobs whose lease expired while no runner was watching
func (r *TaskRunner) Recover() error {
	n, err := r.recoverExpiredLeases(context.Background())
	if err != nil {
		return err
	}
	r.logger.Info("recovered abandoned tasks", "count", n)
	return nil
}

// Health reports the runner state and job counts by status.
func (r *TaskRunner) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		Running: r.running.Load(),
		Workers: r.config.WorkerCount,
		Busy:    int(r.busy.Load()),
		Queued:  r.queue.Len(),
	}

	counts, err := r.store.CountByStatus(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count tasks: %w", err)
	}
	report.Jobs = counts

	if !report.Running {
		return report, ErrRunnerNotRunning
	}
	return report, nil
}

// prepare resets the bookkeeping of a job about to be saved.
func (r *TaskRunner) prepare(job *Job) {
	job.Status = TaskStatusPending
	job.Attempts = 0
	job.LockedAt = nil
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = r.config.Retry.MaxAttempts()
	}
	if job.RunAt.IsZero() {
		job.RunAt = r.now().UTC()
	}
}

// poller claims due jobs whenever the queue has room
func (r *TaskRunner) poller() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		r.poll()

		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *TaskRunner) poll() {
	free := r.queue.Free()
	if free == 0 {
		return
	}

	jobs, err := r.store.ClaimDue(r.ctx, r.now().UTC(), free)
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("failed to claim due tasks", "error", err)
		}
		return
	}

	for _, job := range jobs {
		if err := r.queue.Enqueue(job); err != nil {
			r.logger.Error("failed to hand claimed task to workers",
				"task_id", job.ID,
				"task_type", job.Type,
				"error", err)
			if relErr := r.store.Release(context.Background(), job.ID); relErr != nil {
				r.logger.Error("failed to release task", "task_id", job.ID, "error", relErr)
			}
		}
	}
}

// worker processes jobs from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-r.queue.Channel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.processJob(job, id)
		}
	}
}

// processJob handles execution of a single job
func (r *TaskRunner) processJob(job *Job, workerID int) {
	r.busy.Add(1)
	defer r.busy.Add(-1)

	log := r.logger.With(
		"task_id", job.ID,
		"task_type", job.Type,
		"worker_id", workerID,
		"attempt", job.Attempts,
	)
	ctx := logger.WithLogger(context.Background(), log)

	t, err := r.registry.Build(job)
	if err != nil {
		log.Error("failed to rebuild task", "error", err)
		r.fail(ctx, log, job, nil, err)
		return
	}

	log.Info("processing task")
	start := r.now()

	if err := r.execute(ctx, job, t); err != nil {
		log.Error("task execution failed, changes rolled back",
			"error", err,
			"duration", r.now().Sub(start))
		r.handleFailure(ctx, log, job, t, err)
		return
	}

	log.Info("task completed successfully",
		"duration", r.now().Sub(start),
		"chained", len(job.Chain))
}

// execute runs t and completes job in one session. A panic is turned into
// an ordinary failure after the session has rolled back.
func (r *TaskRunner) execute(ctx context.Context, job *Job, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()

	if st, ok := t.(StandaloneTask); ok {
		if err := st.Run(ctx); err != nil {
			return err
		}
		return r.sessions.RunInSession(ctx, func(ctx context.Context, s Session) error {
			return r.complete(ctx, s, job)
		})
	}

	return r.sessions.RunInSession(ctx, func(ctx context.Context, s Session) error {
		if err := t.Execute(ctx, s); err != nil {
			return err
		}
		return r.complete(ctx, s, job)
	})
}

// complete marks job completed and submits its chain in the same transaction.
func (r *TaskRunner) complete(ctx context.Context, s Session, job *Job) error {
	tasks := s.Tasks()
	if err := tasks.Complete(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	for _, next := range job.Chain {
		r.prepare(next)
		if err := tasks.SaveJob(ctx, next); err != nil {
			return fmt.Errorf("failed to submit chained %s task: %w", next.Type, err)
		}
	}

	if len(job.Chain) > 0 {
		s.AfterCommit(func(context.Context) { r.Notify() })
	}
	return nil
}

// handleFailure schedules a retry, or fails the job once no retry is left.
func (r *TaskRunner) handleFailure(ctx context.Context, log *slog.Logger, job *Job, t Task, cause error) {
	if errors.Is(cause, ErrPermanent) || job.Exhausted() {
		r.fail(ctx, log, job, t, cause)
		return
	}

	delay := r.config.Retry.Delay(job.Attempts)
	if err := r.store.Reschedule(ctx, job.ID, r.now().UTC().Add(delay), cause.Error()); err != nil {
		log.Error("failed to schedule task retry", "error", err)
		return
	}

	log.Warn("task scheduled for retry",
		"retry_in", delay,
		"max_attempts", job.MaxAttempts)
}

// fail marks job failed and lets t record the failure on its own entities.
// If that session cannot commit the job is still marked failed on its own.
func (r *TaskRunner) fail(ctx context.Context, log *slog.Logger, job *Job, t Task, cause error) {
	err := r.sessions.RunInSession(ctx, func(ctx context.Context, s Session) error {
		if err := s.Tasks().Fail(ctx, job.ID, cause.Error()); err != nil {
			return fmt.Errorf("failed to mark task failed: %w", err)
		}
		if h, ok := t.(FailureHandler); ok {
			if err := h.OnPermanentFailure(ctx, s, cause); err != nil {
				return fmt.Errorf("failed to record task failure: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to record permanent failure", "error", err)
		if failErr := r.store.Fail(ctx, job.ID, cause.Error()); failErr != nil {
			log.Error("failed to mark task failed", "error", failErr)
		}
	}

	log.Error("task failed permanently",
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", cause)

	if r.reporter != nil {
		r.reporter.CaptureTaskFailure(ctx, job.ID, job.Type, cause)
	}
}

// recoverExpiredLeases requeues or fails jobs whose worker is presumed lost.
// The lost execution counts as an attempt.
func (r *TaskRunner) recoverExpiredLeases(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.config.LeaseTimeout)

	jobs, err := r.store.GetExpiredLeases(ctx, cutoff, leaseBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get expired leases: %w", err)
	}

	for _, job := range jobs {
		log := r.logger.With(
			"task_id", job.ID,
			"task_type", job.Type,
			"attempt", job.Attempts,
		)

		if job.Exhausted() {
			t, _ := r.registry.Build(job)
			r.fail(logger.WithLogger(ctx, log), log, job, t, ErrWorkerLost)
			continue
		}

		if err := r.store.Reschedule(ctx, job.ID, r.now().UTC(), ErrWorkerLost.Error()); err != nil {
			log.Error("failed to requeue task with expired lease", "error", err)
			continue
		}
		log.Warn("requeued task with expired lease")
	}

	if len(jobs) > 0 {
		r.Notify()
	}
	return len(jobs), nil
}

// stuckTaskMonitor periodically looks for jobs whose lease expired
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			n, err := r.recoverExpiredLeases(context.Background())
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("found stuck tasks", "count", n)
			}
		}
	}
}
