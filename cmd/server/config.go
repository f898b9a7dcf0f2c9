package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/canonify/internal/config"
)

// loadAppConfig loads the configuration from the environment and an
// optional config.yaml.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend)

	if cfg.Database.URL != "" {
		slog.Debug("database configuration", "url_present", true)
	}
	if cfg.Redis.URL != "" {
		slog.Debug("status cache configuration", "url_present", true)
	}
	if cfg.Sentry.DSN != "" {
		slog.Debug("error reporting configuration", "dsn_present", true)
	}

	return cfg, nil
}
