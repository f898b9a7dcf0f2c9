package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ciEnvVars maps CI environment variables to the attribute names they are logged under.
var ciEnvVars = map[string]string{
	"GITHUB_RUN_ID":     "ci_run_id",
	"GITHUB_SHA":        "ci_commit",
	"GITHUB_REF_NAME":   "ci_branch",
	"GITHUB_WORKFLOW":   "ci_workflow",
	"GITHUB_REPOSITORY": "ci_repository",
}

// IsCI reports whether the process runs inside a CI environment.
func IsCI() bool {
	v := strings.ToLower(os.Getenv("CI"))
	return v == "true" || v == "1"
}

// CIHandler is a custom slog.Handler that adds CI environment metadata to log records.
type CIHandler struct {
	handler slog.Handler
}

// NewCIHandler creates a new CIHandler that wraps a JSON handler writing to out.
// CI metadata is attached once, as handler-level attributes.
func NewCIHandler(out io.Writer, opts *slog.HandlerOptions) *CIHandler {
	var handlerOpts slog.HandlerOptions
	if opts != nil {
		handlerOpts = *opts
	}

	var attrs []slog.Attr
	for env, key := range ciEnvVars {
		if v := os.Getenv(env); v != "" {
			attrs = append(attrs, slog.String(key, v))
		}
	}

	return &CIHandler{
		handler: slog.NewJSONHandler(out, &handlerOpts).WithAttrs(attrs),
	}
}

// Enabled implements the slog.Handler interface.
func (h *CIHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements the slog.Handler interface.
func (h *CIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CIHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup implements the slog.Handler interface.
func (h *CIHandler) WithGroup(name string) slog.Handler {
	return &CIHandler{handler: h.handler.WithGroup(name)}
}

// Handle implements the slog.Handler interface.
func (h *CIHandler) Handle(ctx context.Context, record slog.Record) error {
	enhanced := record.Clone()
	enhanced.AddAttrs(slog.Bool("ci", true))
	return h.handler.Handle(ctx, enhanced)
}
