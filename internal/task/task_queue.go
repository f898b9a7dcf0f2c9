package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the JobQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// JobQueue is the bounded in-memory hand-off between the poller, which claims
// jobs from the store, and the workers that execute them.
type JobQueue struct {
	jobs   chan *Job
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(size int, logger *slog.Logger) *JobQueue {
	if size < 1 {
		size = 1
	}
	return &JobQueue{
		jobs:   make(chan *Job, size),
		logger: logger,
	}
}

// Enqueue adds a claimed job to the queue.
// Returns an error if the queue is full or closed
func (q *JobQueue) Enqueue(job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("task enqueued",
			"task_id", job.ID,
			"task_type", job.Type,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Free returns how many more jobs the queue can buffer.
func (q *JobQueue) Free() int {
	return cap(q.jobs) - len(q.jobs)
}

// Len returns the number of buffered jobs.
func (q *JobQueue) Len() int {
	return len(q.jobs)
}

// Drain removes and returns every buffered job without blocking.
func (q *JobQueue) Drain() []*Job {
	var drained []*Job
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return drained
			}
			drained = append(drained, job)
		default:
			return drained
		}
	}
}

// Close closes the queue, preventing further submission
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("task queue closed")
	}
}

// Channel returns a read-only channel for consuming jobs
func (q *JobQueue) Channel() <-chan *Job {
	return q.jobs
}
