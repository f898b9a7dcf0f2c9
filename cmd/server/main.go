// Package main runs the canonify server: the HTTP API and the in-process
// task workers that store and convert uploaded files. With -migrate it
// applies or inspects schema migrations instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

// release is stamped at build time with -ldflags "-X main.release=...".
var release = "dev"

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command: up, down, status, version or create")
	migrationName := flag.String("name", "", "name of the migration to create with -migrate=create")
	verbose := flag.Bool("verbose", false, "log migration details")
	flag.Parse()

	if err := run(context.Background(), *migrateCmd, *migrationName, *verbose); err != nil {
		slog.Error("canonify exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, migrateCmd, migrationName string, verbose bool) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		return handleMigrations(ctx, cfg, logger, migrateCmd, migrationName, verbose)
	}

	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
