package errtrack

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Flush(time.Duration) bool              { return true }
func (t *captureTransport) FlushWithContext(context.Context) bool { return true }
func (t *captureTransport) Configure(sentry.ClientOptions)        {}
func (t *captureTransport) Close()                                {}
func (t *captureTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *captureTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestReporter(t *testing.T) (*Reporter, *captureTransport) {
	t.Helper()
	transport := &captureTransport{}
	r, err := newReporter(sentry.ClientOptions{Transport: transport},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r, transport
}

func exceptionValues(event *sentry.Event) []string {
	values := make([]string, 0, len(event.Exception))
	for _, e := range event.Exception {
		values = append(values, e.Value)
	}
	return values
}

func TestNewReporter_EmptyDSNIsNoop(t *testing.T) {
	r, err := NewReporter(config.SentryConfig{}, "test", nil)
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.CaptureTaskFailure(context.Background(), uuid.New(), "store_file", errors.New("boom"))
	r.CapturePanic(context.Background(), nil, "boom")
	assert.True(t, r.Flush(time.Millisecond))
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter
	assert.False(t, r.Enabled())
	r.CaptureTaskFailure(context.Background(), uuid.New(), "store_file", errors.New("boom"))
	assert.True(t, r.Flush(time.Millisecond))
}

func TestCaptureTaskFailure(t *testing.T) {
	r, transport := newTestReporter(t)
	taskID := uuid.New()

	r.CaptureTaskFailure(context.Background(), taskID, "convert_file", errors.New("decoder exploded"))

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, taskID.String(), events[0].Tags["task_id"])
	assert.Equal(t, "convert_file", events[0].Tags["task_type"])
	assert.Equal(t, sentry.LevelError, events[0].Level)
	assert.Contains(t, exceptionValues(events[0]), "decoder exploded")
}

func TestCaptureTaskFailure_ScopeDoesNotLeak(t *testing.T) {
	r, transport := newTestReporter(t)

	r.CaptureTaskFailure(context.Background(), uuid.New(), "store_file", errors.New("first"))
	r.hub.CaptureException(errors.New("second"))

	events := transport.Events()
	require.Len(t, events, 2)
	assert.NotContains(t, events[1].Tags, "task_id")
}

func TestCaptureTaskFailure_NilError(t *testing.T) {
	r, transport := newTestReporter(t)

	r.CaptureTaskFailure(context.Background(), uuid.New(), "store_file", nil)
	assert.Empty(t, transport.Events())
}

func TestCapturePanic(t *testing.T) {
	r, transport := newTestReporter(t)
	req := httptest.NewRequest("POST", "/upload", nil)

	r.CapturePanic(context.Background(), req, errors.New("handler panicked"))

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "POST /upload", events[0].Tags["route"])
	assert.Equal(t, sentry.LevelFatal, events[0].Level)
}
