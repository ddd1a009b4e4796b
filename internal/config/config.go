// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// MaxJobs bounds the runs executing at once; further starts are
		// refused until one finishes.
		MaxJobs int `env:"OPT_MAX_JOBS" envDefault:"4"`
		// MaxEvaluations bounds the evaluation budget of one request.
		MaxEvaluations int `env:"OPT_MAX_EVALUATIONS" envDefault:"1000000"`
		MaxDim         int `env:"OPT_MAX_DIM" envDefault:"100"`
		// DefaultSeed applies to requests without a seed; 0 is time-seeded.
		DefaultSeed uint64 `env:"OPT_DEFAULT_SEED" envDefault:"0"`
		// JobTimeout cancels runs that take longer; 0 disables it.
		JobTimeout time.Duration `env:"OPT_JOB_TIMEOUT" envDefault:"10m"`
		// Retention is how long finished jobs stay queryable.
		Retention time.Duration `env:"OPT_RETENTION" envDefault:"1h"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env cannot constrain by type alone.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port < 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("config: HTTP_PORT out of range: %d", c.HTTP.Port)
	case c.Optimization.MaxJobs < 1:
		return fmt.Errorf("config: OPT_MAX_JOBS must be at least 1, got %d", c.Optimization.MaxJobs)
	case c.Optimization.MaxEvaluations < 1:
		return fmt.Errorf("config: OPT_MAX_EVALUATIONS must be at least 1, got %d", c.Optimization.MaxEvaluations)
	case c.Optimization.MaxDim < 1:
		return fmt.Errorf("config: OPT_MAX_DIM must be at least 1, got %d", c.Optimization.MaxDim)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
