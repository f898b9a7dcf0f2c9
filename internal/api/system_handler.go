package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/canonify/internal/api/shared"
	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/task"
)

// MessageNoWorkers is the worker response when the runner is not processing.
const MessageNoWorkers = "No workers currently active."

// WorkerPool is the part of the task runner used by the system routes.
type WorkerPool interface {
	Health(ctx context.Context) (*task.HealthReport, error)
	Submit(ctx context.Context, t task.Task) error
}

// MigrationVersionFunc returns the current schema version.
type MigrationVersionFunc func(ctx context.Context) (int64, error)

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	MigrationVersion int64 `json:"migration_version"`
	WorkerResponse   any   `json:"worker_response"`
}

// SystemHandler serves the operator routes.
type SystemHandler struct {
	workers        WorkerPool
	version        MigrationVersionFunc
	diagnosticWait time.Duration
	logger         *slog.Logger
}

// NewSystemHandler creates a SystemHandler. diagnosticWait is how long the
// diagnostic task sleeps.
func NewSystemHandler(
	workers WorkerPool,
	version MigrationVersionFunc,
	diagnosticWait time.Duration,
	logger *slog.Logger,
) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		workers:        workers,
		version:        version,
		diagnosticWait: diagnosticWait,
		logger:         logger.With("component", "system_handler"),
	}
}

// Root handles GET /.
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"Hello": "World"})
}

// Health handles GET /health. A stopped runner is reported in the body,
// not as an error status.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	version, err := h.version(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := HealthResponse{MigrationVersion: version}
	report, err := h.workers.Health(r.Context())
	if err != nil || report.Workers == 0 {
		if err != nil {
			logger.FromContextOrDefault(r.Context(), h.logger).Warn("worker ping failed", "error", err)
		}
		resp.WorkerResponse = MessageNoWorkers
	} else {
		resp.WorkerResponse = report
	}

	shared.RespondWithData(w, r, http.StatusOK, "", resp)
}

// TestTask handles GET /test-task by submitting a diagnostic task.
func (h *SystemHandler) TestTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	t := task.NewDiagnosticTask(h.diagnosticWait, h.logger)
	if err := h.workers.Submit(r.Context(), t); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("diagnostic task submitted", "task_id", t.ID())
	shared.RespondWithData(w, r, http.StatusOK, "Check worker logs.", []any{})
}
