package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"taskq.db" validate:"required"`

	ExecutionWorkerThreads     int `env:"EXECUTION_WORKER_THREADS" envDefault:"4" validate:"min=1,max=256"`
	ExecutionWorkerIntervalSec int `env:"EXECUTION_WORKER_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	ScheduleWorkerIntervalSec  int `env:"SCHEDULE_WORKER_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	CleanupWorkerIntervalSec   int `env:"CLEANUP_WORKER_INTERVAL_SEC" envDefault:"60" validate:"min=1,max=3600"`

	DeleteSucceededAfterSec int `env:"DELETE_SUCCEEDED_AFTER_SEC" envDefault:"86400" validate:"min=1"`
	DeleteFailedAfterSec    int `env:"DELETE_FAILED_AFTER_SEC" envDefault:"604800" validate:"min=1"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
