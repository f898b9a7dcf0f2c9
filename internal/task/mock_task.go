package task

import (
	"context"

	"github.com/google/uuid"
)

// MockTask is a simple implementation of the Task interface for testing
type MockTask struct {
	TaskID      uuid.UUID
	TaskType    string
	TaskPayload []byte
	ExecuteFn   func(ctx context.Context, s Session) error
	OnFailureFn func(ctx context.Context, s Session, cause error) error
}

// NewMockTask creates a new MockTask with the given ID and type
func NewMockTask(id uuid.UUID, taskType string, payload []byte) *MockTask {
	return &MockTask{
		TaskID:      id,
		TaskType:    taskType,
		TaskPayload: payload,
		ExecuteFn:   func(ctx context.Context, s Session) error { return nil },
	}
}

// ID returns the task's unique identifier
func (t *MockTask) ID() uuid.UUID {
	return t.TaskID
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return t.TaskType
}

// Payload returns the task data as a byte slice
func (t *MockTask) Payload() []byte {
	return t.TaskPayload
}

// Execute runs the task logic
func (t *MockTask) Execute(ctx context.Context, s Session) error {
	return t.ExecuteFn(ctx, s)
}

// OnPermanentFailure calls OnFailureFn when set
func (t *MockTask) OnPermanentFailure(ctx context.Context, s Session, cause error) error {
	if t.OnFailureFn == nil {
		return nil
	}
	return t.OnFailureFn(ctx, s, cause)
}
