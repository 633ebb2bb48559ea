// Package config loads service configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything schedulerd needs to start.
type Config struct {
	// HTTPAddr is the listen address of the jobs API.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Backend selects the scheduler backend kind (crontab or memory).
	Backend string `env:"SCHEDULER_BACKEND" envDefault:"crontab"`

	// CrontabUser is the OS account whose crontab is managed.
	// Empty means the account schedulerd runs as.
	CrontabUser string `env:"SCHEDULER_CRONTAB_USER"`

	// StateDir holds the lock and stamp files dependency guards use.
	StateDir string `env:"SCHEDULER_STATE_DIR" envDefault:"/var/lib/openvair/scheduler"`

	// GuardWait bounds how long a dependent job waits for a running
	// upstream occurrence.
	GuardWait time.Duration `env:"SCHEDULER_GUARD_WAIT" envDefault:"15m"`

	// Storage selects the job record store: memory or postgres.
	Storage string `env:"SCHEDULER_STORAGE" envDefault:"memory"`

	// DatabaseURL is required when Storage is postgres.
	DatabaseURL string `env:"DATABASE_CONN_URL"`

	// Sentry error reporting; empty DSN disables it.
	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.Storage == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_CONN_URL is required when SCHEDULER_STORAGE=postgres")
	}
	return cfg, nil
}
