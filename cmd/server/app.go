package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/canonify/internal/config"
	"github.com/phrazzld/canonify/internal/conversion"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/phrazzld/canonify/internal/platform/cache"
	"github.com/phrazzld/canonify/internal/platform/errtrack"
	"github.com/phrazzld/canonify/internal/platform/postgres"
	"github.com/phrazzld/canonify/internal/platform/storage"
	"github.com/phrazzld/canonify/internal/service"
	"github.com/phrazzld/canonify/internal/store"
	"github.com/phrazzld/canonify/internal/task"
)

// application holds the shared dependencies so they can be wired once and
// released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	fileStore store.FileStore
	taskStore task.TaskStore
	sessions  task.SessionFactory
	storage   storage.Storage
	engine    *conversion.Engine
	renderer  *conversion.PdfiumRenderer

	eventEmitter *events.InMemoryEventEmitter
	statusCache  *cache.StatusCache
	reporter     *errtrack.Reporter

	taskRunner       *task.TaskRunner
	ingestionService *service.IngestionService
	queryService     *service.QueryService
}

// newApplication wires every component on top of an open database.
// The task runner is created here but started by Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := configureGoose(logger.With("component", "migrations")); err != nil {
		return nil, err
	}

	resolution, err := domain.ParseResolution(cfg.Conversion.Resolution)
	if err != nil {
		return nil, fmt.Errorf("invalid conversion resolution: %w", err)
	}
	allowed, err := parseAllowedTypes(cfg.Conversion.AllowedTypes)
	if err != nil {
		return nil, err
	}

	app.reporter, err = errtrack.NewReporter(cfg.Sentry, release, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error reporting: %w", err)
	}
	logger.Info("error reporting configured", "enabled", app.reporter.Enabled())

	app.fileStore = postgres.NewPostgresFileStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.sessions = postgres.NewSessionFactory(db, app.fileStore, app.taskStore, logger)

	app.storage, err = storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("storage initialized", "backend", cfg.Storage.Backend, "root", cfg.Storage.Root)

	app.engine = conversion.NewEngine(conversion.Config{
		PageWorkers: cfg.Conversion.PageWorkers,
		PageDPI:     cfg.Conversion.PageDPI,
	}, logger)
	app.renderer, err = conversion.NewPdfiumRenderer(cfg.Conversion.PageWorkers)
	if err != nil {
		logger.Warn("pdf page rendering unavailable, using embedded page images", "error", err)
	} else {
		app.engine.SetRenderer(app.renderer)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	if cfg.Redis.URL != "" {
		app.statusCache, err = cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect status cache: %w", err)
		}
		app.eventEmitter.RegisterHandler(app.statusCache, events.TypeFileStatusChanged)
		logger.Info("status cache enabled", "ttl", cfg.Redis.TTL)
	}

	tasks, err := task.NewFileTaskFactory(app.storage, app.engine, app.eventEmitter, resolution, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}
	registry := task.NewRegistry()
	tasks.Register(registry)

	app.taskRunner = task.NewTaskRunner(app.taskStore, app.sessions, registry, task.TaskRunnerConfig{
		WorkerCount:            cfg.Task.WorkerCount,
		QueueSize:              cfg.Task.QueueSize,
		PollInterval:           cfg.Task.PollInterval,
		LeaseTimeout:           cfg.Task.LeaseTimeout,
		StuckTaskCheckInterval: cfg.Task.StuckCheckInterval,
		Retry: task.RetryPolicy{
			MaxRetries:    cfg.Task.MaxRetries,
			BaseDelay:     cfg.Task.RetryBaseDelay,
			MaxDelay:      task.DefaultRetryPolicy().MaxDelay,
			JitterPercent: task.DefaultRetryPolicy().JitterPercent,
		},
	}, logger)
	if app.reporter.Enabled() {
		app.taskRunner.SetFailureReporter(app.reporter)
	}

	app.ingestionService, err = service.NewIngestionService(
		app.sessions,
		app.taskRunner,
		tasks,
		app.engine,
		service.IngestionConfig{AllowedTypes: allowed},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion service: %w", err)
	}

	var statusCache service.StatusCache
	if app.statusCache != nil {
		statusCache = app.statusCache
	}
	app.queryService, err = service.NewQueryService(app.fileStore, statusCache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create query service: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// parseAllowedTypes converts the configured allow-list into file types.
func parseAllowedTypes(names []string) ([]domain.FileType, error) {
	types := make([]domain.FileType, 0, len(names))
	for _, name := range names {
		ft, err := domain.ParseFileType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed type: %w", err)
		}
		types = append(types, ft)
	}
	return types, nil
}

// Run starts the workers and serves HTTP until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func (app *application) Run(ctx context.Context) error {
	if err := app.taskRunner.Start(); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.renderer != nil {
		if err := app.renderer.Close(); err != nil {
			app.logger.Error("error closing pdf renderer", "error", err)
		}
	}

	if app.statusCache != nil {
		if err := app.statusCache.Close(); err != nil {
			app.logger.Error("error closing status cache", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	if app.reporter != nil {
		app.reporter.Flush(errtrack.DefaultFlushTimeout)
	}

	app.logger.Info("application shutdown completed")
}
