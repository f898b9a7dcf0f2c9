package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Factory rebuilds a Task from its persisted ID and payload.
type Factory func(id uuid.UUID, payload []byte) (Task, error)

// Registry maps task types to the factories that rebuild them from jobs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates taskType with f, replacing any previous factory.
func (r *Registry) Register(taskType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = f
}

// Types returns the registered task types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// Build rebuilds the Task for job. Unknown types and undecodable payloads are
// permanent failures.
func (r *Registry) Build(job *Job) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[job.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for task type %q", ErrPermanent, job.Type)
	}

	t, err := f(job.ID, job.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s payload: %v", ErrPermanent, job.Type, err)
	}
	return t, nil
}
