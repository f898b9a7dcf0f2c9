package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/canonify/internal/api/shared"
	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/redact"
)

// PanicReporter forwards recovered panics to an error tracker.
type PanicReporter interface {
	CapturePanic(ctx context.Context, req *http.Request, recovered any)
}

// NewRecoverMiddleware turns a panicking handler into a 500 envelope. The
// panic value is logged redacted and passed to reporter when it is not nil.
func NewRecoverMiddleware(reporter PanicReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.FromContextOrDefault(r.Context(), slog.Default()).Error("panic while serving request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", redact.String(fmt.Sprint(rec))))

				if reporter != nil {
					reporter.CapturePanic(r.Context(), r, rec)
				}

				shared.RespondWithError(w, r, http.StatusInternalServerError, shared.MessageInternalError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
