package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DiagnosticDelay is how long a diagnostic task sleeps.
const DiagnosticDelay = 5 * time.Second

// DiagnosticTask logs, sleeps and logs again. It shows that workers pick up
// and finish jobs.
type DiagnosticTask struct {
	id     uuid.UUID
	delay  time.Duration
	logger *slog.Logger
}

var _ StandaloneTask = (*DiagnosticTask)(nil)

// NewDiagnosticTask creates a diagnostic task sleeping for delay.
func NewDiagnosticTask(delay time.Duration, logger *slog.Logger) *DiagnosticTask {
	return &DiagnosticTask{
		id:     uuid.New(),
		delay:  delay,
		logger: logger.With("task_type", TaskTypeDiagnostic),
	}
}

// ID returns the task's unique identifier
func (t *DiagnosticTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *DiagnosticTask) Type() string {
	return TaskTypeDiagnostic
}

// Payload returns the task data as a byte slice
func (t *DiagnosticTask) Payload() []byte {
	return []byte("{}")
}

// Execute implements Task
func (t *DiagnosticTask) Execute(ctx context.Context, _ Session) error {
	return t.Run(ctx)
}

// Run implements StandaloneTask
func (t *DiagnosticTask) Run(ctx context.Context) error {
	t.logger.Info("entering diagnostic task", "delay", t.delay)

	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	t.logger.Info("exiting diagnostic task")
	return nil
}
