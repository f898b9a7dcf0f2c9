package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/store"
)

// MockTaskStore implements the TaskStore interface in memory for testing.
// Function fields override the default behavior.
type MockTaskStore struct {
	mutex sync.Mutex
	jobs  map[uuid.UUID]Job

	SaveFn       func(ctx context.Context, job *Job) error
	ClaimDueFn   func(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	CompleteFn   func(ctx context.Context, id uuid.UUID) error
	RescheduleFn func(ctx context.Context, id uuid.UUID, runAt time.Time, errMsg string) error
	FailFn       func(ctx context.Context, id uuid.UUID, errMsg string) error
}

var _ TaskStore = (*MockTaskStore)(nil)

// NewMockTaskStore creates an empty MockTaskStore
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{jobs: make(map[uuid.UUID]Job)}
}

// Job returns a copy of the stored job, or nil.
func (s *MockTaskStore) Job(id uuid.UUID) *Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return &job
}

// Jobs returns copies of all stored jobs ordered by creation.
func (s *MockTaskStore) Jobs() []*Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		job := job
		out = append(out, &job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// JobsOfType returns the stored jobs with the given type.
func (s *MockTaskStore) JobsOfType(taskType string) []*Job {
	var out []*Job
	for _, job := range s.Jobs() {
		if job.Type == taskType {
			out = append(out, job)
		}
	}
	return out
}

// Put stores a copy of job as is.
func (s *MockTaskStore) Put(job *Job) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.jobs[job.ID] = *job
}

// Snapshot captures the stored jobs and returns a func restoring them.
func (s *MockTaskStore) Snapshot() func() {
	s.mutex.Lock()
	saved := make(map[uuid.UUID]Job, len(s.jobs))
	for id, job := range s.jobs {
		saved[id] = job
	}
	s.mutex.Unlock()

	return func() {
		s.mutex.Lock()
		s.jobs = saved
		s.mutex.Unlock()
	}
}

// SaveJob implements TaskStore
func (s *MockTaskStore) SaveJob(ctx context.Context, job *Job) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, job)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}
	now := time.Now().UTC()
	stored := *job
	stored.Status = TaskStatusPending
	// Keep insertion order stable for jobs saved within the same clock tick.
	stored.CreatedAt = now.Add(time.Duration(len(s.jobs)))
	stored.UpdatedAt = now
	s.jobs[job.ID] = stored
	return nil
}

// GetJob implements TaskStore
func (s *MockTaskStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := s.Job(id)
	if job == nil {
		return nil, store.ErrTaskNotFound
	}
	return job, nil
}

// ClaimDue implements TaskStore
func (s *MockTaskStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	if s.ClaimDueFn != nil {
		return s.ClaimDueFn(ctx, now, limit)
	}

	var claimed []*Job
	for _, job := range s.Jobs() {
		if len(claimed) >= limit {
			break
		}
		if job.Status != TaskStatusPending || job.RunAt.After(now) {
			continue
		}

		s.mutex.Lock()
		stored := s.jobs[job.ID]
		stored.Status = TaskStatusProcessing
		stored.Attempts++
		lockedAt := now
		stored.LockedAt = &lockedAt
		stored.UpdatedAt = now
		s.jobs[job.ID] = stored
		s.mutex.Unlock()

		claimed = append(claimed, &stored)
	}
	return claimed, nil
}

func (s *MockTaskStore) update(id uuid.UUID, requireProcessing bool, fn func(job *Job)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if requireProcessing && job.Status != TaskStatusProcessing {
		return store.ErrStaleStatus
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}

// Complete implements TaskStore
func (s *MockTaskStore) Complete(ctx context.Context, id uuid.UUID) error {
	if s.CompleteFn != nil {
		return s.CompleteFn(ctx, id)
	}
	return s.update(id, true, func(job *Job) {
		job.Status = TaskStatusCompleted
		job.LockedAt = nil
	})
}

// Reschedule implements TaskStore
func (s *MockTaskStore) Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, errMsg string) error {
	if s.RescheduleFn != nil {
		return s.RescheduleFn(ctx, id, runAt, errMsg)
	}
	return s.update(id, true, func(job *Job) {
		job.Status = TaskStatusPending
		job.RunAt = runAt
		job.LastError = errMsg
		job.LockedAt = nil
	})
}

// Release implements TaskStore
func (s *MockTaskStore) Release(ctx context.Context, id uuid.UUID) error {
	return s.update(id, true, func(job *Job) {
		job.Status = TaskStatusPending
		if job.Attempts > 0 {
			job.Attempts--
		}
		job.LockedAt = nil
	})
}

// Fail implements TaskStore
func (s *MockTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	if s.FailFn != nil {
		return s.FailFn(ctx, id, errMsg)
	}
	return s.update(id, false, func(job *Job) {
		job.Status = TaskStatusFailed
		job.LastError = errMsg
		job.LockedAt = nil
	})
}

// GetExpiredLeases implements TaskStore
func (s *MockTaskStore) GetExpiredLeases(ctx context.Context, lockedBefore time.Time, limit int) ([]*Job, error) {
	var expired []*Job
	for _, job := range s.Jobs() {
		if len(expired) >= limit {
			break
		}
		if job.Status == TaskStatusProcessing && job.LockedAt != nil && job.LockedAt.Before(lockedBefore) {
			expired = append(expired, job)
		}
	}
	return expired, nil
}

// CountByStatus implements TaskStore
func (s *MockTaskStore) CountByStatus(ctx context.Context) (map[TaskStatus]int, error) {
	counts := make(map[TaskStatus]int)
	for _, job := range s.Jobs() {
		counts[job.Status]++
	}
	return counts, nil
}

// WithTx implements TaskStore
func (s *MockTaskStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}
