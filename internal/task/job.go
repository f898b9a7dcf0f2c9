package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is the persisted form of a Task: what to run, how often it was tried
// and what to submit once it succeeds.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      TaskStatus      `json:"-"`
	Attempts    int             `json:"-"`
	MaxAttempts int             `json:"-"`
	RunAt       time.Time       `json:"-"`
	LockedAt    *time.Time      `json:"-"`
	LastError   string          `json:"-"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`

	// Chain holds the jobs to submit after this one succeeds. They are saved
	// in the same transaction that marks this job completed.
	Chain []*Job `json:"chain,omitempty"`
}

// NewJob creates a pending job for t.
func NewJob(t Task) *Job {
	return &Job{
		ID:      t.ID(),
		Type:    t.Type(),
		Payload: json.RawMessage(t.Payload()),
		Status:  TaskStatusPending,
	}
}

// Then chains next after j and returns j.
func (j *Job) Then(next Task) *Job {
	j.Chain = append(j.Chain, NewJob(next))
	return j
}

// Exhausted reports whether no attempts remain.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}
