package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/config"
	"github.com/phrazzld/canonify/internal/platform/postgres/migrations"
	"github.com/pressly/goose/v3"
)

const (
	// MigrationTableName is the table goose records applied versions in.
	MigrationTableName = "schema_migrations"

	// migrationsSourceDir is where -migrate=create writes new files,
	// relative to the repository root.
	migrationsSourceDir = "internal/platform/postgres/migrations"
)

// ErrUnknownMigrationCommand is returned for a -migrate value goose does not support here.
var ErrUnknownMigrationCommand = errors.New("unknown migration command")

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level. It does not exit; the error is returned to main.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// configureGoose points goose at the embedded migrations.
func configureGoose(logger *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{logger: logger})
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// migrationVersion returns the latest applied schema version of db.
func migrationVersion(db *sql.DB) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return 0, fmt.Errorf("failed to read migration version: %w", err)
		}
		return v, nil
	}
}

// handleMigrations runs a single goose command against the configured database.
func handleMigrations(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	command string,
	name string,
	verbose bool,
) error {
	log := logger.With(
		"correlation_id", uuid.NewString(),
		"component", "migrations",
		"command", command,
	)

	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is empty: check your configuration")
	}

	start := time.Now()
	log.Info("starting migration operation",
		"url", maskDatabaseURL(cfg.Database.URL),
		"verbose", verbose)

	db, err := openDatabase(ctx, cfg.Database.URL, 5, 2)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connection", "error", err)
		}
		log.Info("migration operation completed", "duration_ms", time.Since(start).Milliseconds())
	}()

	if err := configureGoose(log); err != nil {
		return err
	}
	if verbose {
		goose.SetVerbose(true)
	}

	if err := executeMigration(ctx, db, command, name); err != nil {
		log.Error("migration command failed", "error", err)
		return fmt.Errorf("migration command '%s' failed: %w", command, err)
	}

	if command == "up" || command == "down" {
		if v, err := goose.GetDBVersionContext(ctx, db); err == nil {
			log.Info("database schema version", "version", v)
		}
	}
	return nil
}

func executeMigration(ctx context.Context, db *sql.DB, command, name string) error {
	switch command {
	case "up":
		return goose.UpContext(ctx, db, ".")
	case "down":
		return goose.DownContext(ctx, db, ".")
	case "status":
		return goose.StatusContext(ctx, db, ".")
	case "version":
		return goose.VersionContext(ctx, db, ".")
	case "create":
		if name == "" {
			return fmt.Errorf("migration name is required for 'create' command")
		}
		// Creation writes to the source tree, not the embedded copy.
		goose.SetBaseFS(nil)
		defer goose.SetBaseFS(migrations.FS)
		return goose.Create(db, migrationsSourceDir, name, "sql")
	default:
		return fmt.Errorf("%w: %s (expected up, down, status, version or create)", ErrUnknownMigrationCommand, command)
	}
}

// maskDatabaseURL masks the password in a database URL for safe logging.
func maskDatabaseURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}

	return parsedURL.Redacted()
}

// extractHostFromURL extracts the hostname from a database URL for logging
func extractHostFromURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "unknown"
	}
	return parsedURL.Hostname()
}
