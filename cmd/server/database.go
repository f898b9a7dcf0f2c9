package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/canonify/internal/config"
)

const dbPingTimeout = 5 * time.Second

// openDatabase opens a pgx-backed *sql.DB and checks that it answers.
func openDatabase(ctx context.Context, url string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// setupAppDatabase connects with the pool settings from cfg.
func setupAppDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := openDatabase(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, err
	}

	logger.Info("database connection established",
		"host", extractHostFromURL(cfg.Database.URL),
		"max_open_conns", cfg.Database.MaxOpenConns)
	return db, nil
}
