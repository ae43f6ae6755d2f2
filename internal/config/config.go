// Package config provides configuration loading for taskd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Queue        QueueConfig        `koanf:"queue"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Validation   ValidationConfig   `koanf:"validation"`
	NATS         NATSConfig         `koanf:"nats"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// QueueConfig configures the task ledger.
type QueueConfig struct {
	// StateDir holds the task ledger file. Empty means
	// ~/.config/taskd/state.
	StateDir string `koanf:"state_dir"`

	// Namespace prefixes notification subjects.
	Namespace string `koanf:"namespace"`

	// MaxRetries is the default retry budget for new tasks.
	MaxRetries int `koanf:"max_retries"`
}

// OrchestratorConfig configures dispatch.
type OrchestratorConfig struct {
	MaxConcurrentWorkers int     `koanf:"max_concurrent_workers"`
	DispatchRate         float64 `koanf:"dispatch_rate"`
}

// ValidationConfig configures the output validation pipeline.
type ValidationConfig struct {
	// MinConfidence is the groundedness pass threshold.
	MinConfidence float64 `koanf:"min_confidence"`

	// RulesPath optionally points at a TOML gaming-rules file; empty
	// uses the built-in rule set.
	RulesPath string `koanf:"rules_path"`
}

// NATSConfig configures the optional event broker.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative, got %d", c.Queue.MaxRetries)
	}
	if c.Orchestrator.MaxConcurrentWorkers < 1 {
		return fmt.Errorf("orchestrator.max_concurrent_workers must be at least 1, got %d",
			c.Orchestrator.MaxConcurrentWorkers)
	}
	if c.Validation.MinConfidence < 0 || c.Validation.MinConfidence > 1 {
		return fmt.Errorf("validation.min_confidence must be in [0,1], got %f", c.Validation.MinConfidence)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
