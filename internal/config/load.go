package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "CANONIFY"

var defaults = map[string]any{
	"server.port":               8080,
	"server.log_level":          "info",
	"database.url":              "",
	"database.max_open_conns":   25,
	"database.max_idle_conns":   25,
	"storage.backend":           "local",
	"storage.root":              "scratch",
	"storage.bucket":            "",
	"storage.endpoint":          "",
	"storage.access_key":        "",
	"storage.secret_key":        "",
	"storage.region":            "auto",
	"storage.use_ssl":           true,
	"conversion.resolution":     "3500x3500",
	"conversion.allowed_types":  []string{"png", "jpeg", "jpg", "pdf"},
	"conversion.page_workers":   4,
	"conversion.page_dpi":       150,
	"task.worker_count":         2,
	"task.queue_size":           100,
	"task.max_retries":          3,
	"task.retry_base_delay":     5 * time.Second,
	"task.poll_interval":        time.Second,
	"task.lease_timeout":        30 * time.Minute,
	"task.stuck_check_interval": 5 * time.Minute,
	"redis.url":                 "",
	"redis.ttl":                 30 * time.Second,
	"sentry.dsn":                "",
	"sentry.environment":        "development",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = postgresURLFromEnv()
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// postgresURLFromEnv composes a connection URL from the conventional POSTGRES_*
// variables. It returns "" when no host is configured.
func postgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	sslMode := os.Getenv("POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     host + ":" + port,
		Path:     "/" + os.Getenv("POSTGRES_DB"),
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
