// Package errtrack reports permanent task failures and recovered panics to
// Sentry. A Reporter built without a DSN discards everything.
package errtrack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/config"
)

// DefaultFlushTimeout bounds how long Flush waits for buffered events.
const DefaultFlushTimeout = 2 * time.Second

// Reporter sends errors to Sentry through its own hub.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// NewReporter creates a Reporter from cfg. An empty DSN yields a no-op
// Reporter.
func NewReporter(cfg config.SentryConfig, release string, logger *slog.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{logger: loggerOrDefault(logger)}, nil
	}
	return newReporter(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	}, logger)
}

func newReporter(opts sentry.ClientOptions, logger *slog.Logger) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &Reporter{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: loggerOrDefault(logger),
	}, nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "errtrack")
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureTaskFailure reports a task that failed for good.
func (r *Reporter) CaptureTaskFailure(ctx context.Context, taskID uuid.UUID, taskType string, err error) {
	if !r.Enabled() || err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("task_id", taskID.String())
		scope.SetTag("task_type", taskType)
		scope.SetLevel(sentry.LevelError)
		if id := r.hub.CaptureException(err); id != nil {
			r.logger.DebugContext(ctx, "task failure reported",
				"task_id", taskID,
				"event_id", string(*id))
		}
	})
}

// CapturePanic reports a recovered panic raised while serving req.
func (r *Reporter) CapturePanic(ctx context.Context, req *http.Request, recovered any) {
	if !r.Enabled() || recovered == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		if req != nil {
			scope.SetRequest(req)
			scope.SetTag("route", req.Method+" "+req.URL.Path)
		}
		scope.SetLevel(sentry.LevelFatal)
		r.hub.RecoverWithContext(ctx, recovered)
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
