package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage"    validate:"required"`
	Conversion ConversionConfig `mapstructure:"conversion" validate:"required"`
	Task       TaskConfig       `mapstructure:"task"       validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// StorageConfig selects and configures the blob backend that holds uploads
// and converted outputs.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"    validate:"required,oneof=local minio s3"`
	Root      string `mapstructure:"root"       validate:"required"`
	Bucket    string `mapstructure:"bucket"     validate:"required_unless=Backend local"`
	Endpoint  string `mapstructure:"endpoint"   validate:"required_if=Backend minio"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ConversionConfig contains settings for upload validation and raster conversion.
type ConversionConfig struct {
	// Resolution is the canonical output size, formatted WxH.
	Resolution   string   `mapstructure:"resolution"    validate:"required"`
	AllowedTypes []string `mapstructure:"allowed_types" validate:"required,min=1,dive,required"`
	PageWorkers  int      `mapstructure:"page_workers"  validate:"gte=1"`
	// PageDPI is the resolution PDF pages are rendered at.
	PageDPI int `mapstructure:"page_dpi" validate:"gte=36,lte=1200"`
}

// TaskConfig contains settings for the background task runner.
type TaskConfig struct {
	WorkerCount        int           `mapstructure:"worker_count"         validate:"gte=1"`
	QueueSize          int           `mapstructure:"queue_size"           validate:"gte=1"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"gte=0"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"     validate:"gt=0"`
	PollInterval       time.Duration `mapstructure:"poll_interval"        validate:"gt=0"`
	LeaseTimeout       time.Duration `mapstructure:"lease_timeout"        validate:"gt=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gt=0"`
}

// RedisConfig configures the optional status cache. An empty URL disables it.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}
