package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/canonify/internal/api"
	apiMiddleware "github.com/phrazzld/canonify/internal/api/middleware"
	"github.com/phrazzld/canonify/internal/platform/storage"
	"github.com/phrazzld/canonify/internal/task"
)

// setupRouter builds the chi router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	files := api.NewFileHandler(app.ingestionService, app.queryService, 0, app.logger)
	system := api.NewSystemHandler(app.taskRunner, migrationVersion(app.db), task.DiagnosticDelay, app.logger)

	var static http.FileSystem
	if local, ok := app.storage.(*storage.Local); ok {
		static = local.FileSystem()
	}

	var reporter apiMiddleware.PanicReporter
	if app.reporter.Enabled() {
		reporter = app.reporter
	}

	return newRouter(files, system, static, reporter)
}

// newRouter mounts the handlers. static may be nil, in which case /static
// is not served.
func newRouter(
	files *api.FileHandler,
	system *api.SystemHandler,
	static http.FileSystem,
	reporter apiMiddleware.PanicReporter,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(nil))
	r.Use(apiMiddleware.NewRecoverMiddleware(reporter))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", system.Root)
	r.Get("/health", system.Health)
	r.Get("/test-task", system.TestTask)

	r.Route("/api/files", func(r chi.Router) {
		r.Post("/upload", files.Upload)
		r.Get("/{id}", files.Get)
		r.Get("/{id}/status", files.GetStatus)
	})

	if static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static)))
	}

	return r
}
