package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/redact"
)

// Messages shared by several handlers.
const (
	MessageInternalError = "Something went wrong"
	MessageNoFiles       = "Please select files to upload"
	MessageFileNotFound  = "File not found"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status     bool   `json:"status"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Data       any    `json:"data"`
	TraceID    string `json:"trace_id,omitempty"`
}

// ResponseOption defines a function to customize response behavior.
type ResponseOption func(*responseOptions)

// responseOptions holds configurable options for error responses.
type responseOptions struct {
	elevateLogLevel bool
}

// WithElevatedLogLevel returns a ResponseOption that raises 4xx errors to WARN level
// instead of the default DEBUG level.
func WithElevatedLogLevel() ResponseOption {
	return func(opts *responseOptions) {
		opts.elevateLogLevel = true
	}
}

// RespondWithJSON writes data as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContextOrDefault(r.Context(), slog.Default()).
			Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithData writes a successful envelope.
func RespondWithData(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	RespondWithJSON(w, r, status, Envelope{
		Status:     true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// RespondWithError writes a failed envelope carrying message.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	traceID := GetTraceID(r.Context())

	logger.FromContextOrDefault(r.Context(), slog.Default()).Debug("sending error response",
		"status_code", status,
		"message", message,
		"path", r.URL.Path,
		"method", r.Method)

	RespondWithJSON(w, r, status, errorEnvelope(status, message, traceID))
}

// RespondWithErrorAndLog writes a failed envelope with a safe message and
// logs the redacted error.
//
// 5xx responses log at ERROR and 4xx at DEBUG unless WithElevatedLogLevel
// is passed.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
	opts ...ResponseOption,
) {
	traceID := GetTraceID(r.Context())

	logAttrs := []slog.Attr{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		logAttrs = append(logAttrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	responseOpts := responseOptions{}
	for _, opt := range opts {
		opt(&responseOpts)
	}

	logLevel := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		logLevel = slog.LevelError
	} else if responseOpts.elevateLogLevel && status >= http.StatusBadRequest {
		logLevel = slog.LevelWarn
	}

	logger.FromContextOrDefault(r.Context(), slog.Default()).
		LogAttrs(r.Context(), logLevel, "API error response", logAttrs...)

	RespondWithJSON(w, r, status, errorEnvelope(status, userMessage, traceID))
}

// errorEnvelope builds a failed envelope. The message doubles as the error
// text; raw errors never reach the client.
func errorEnvelope(status int, message, traceID string) Envelope {
	return Envelope{
		Status:     false,
		StatusCode: status,
		Message:    message,
		Error:      message,
		Data:       []any{},
		TraceID:    traceID,
	}
}
