package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// InMemoryEventEmitter is a simple implementation of the EventEmitter interface
// that stores registered handlers in memory and dispatches events to them.
type InMemoryEventEmitter struct {
	handlers []subscription
	mu       sync.RWMutex
	logger   *slog.Logger
}

type subscription struct {
	handler EventHandler
	types   []string
}

func (s subscription) accepts(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make([]subscription, 0),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events of the given
// types. With no types the handler receives every event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, eventTypes ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, subscription{handler: handler, types: eventTypes})
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// EmitEvent publishes the given event to all registered handlers.
// If any handler returns an error, the event will still be sent to all other handlers,
// and the first error encountered will be returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers))
	for _, sub := range e.handlers {
		if sub.accepts(event.Type) {
			handlers = append(handlers, sub.handler)
		}
	}
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		e.logger.Debug("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
