// Package config loads aiguard configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/logging"
	"github.com/roach88/aiguard/internal/parse"
)

// Config is the complete aiguard configuration.
type Config struct {
	Validation ValidationConfig `koanf:"validation"`
	Contracts  ContractsConfig  `koanf:"contracts"`
	Events     EventsConfig     `koanf:"events"`
	Logging    logging.Config   `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ValidationConfig controls the pipeline.
type ValidationConfig struct {
	// Strictness is used when a call does not choose one.
	Strictness    contract.Strictness `koanf:"strictness"`
	MaxInputBytes int                 `koanf:"max_input_bytes"`
}

// ContractsConfig locates contracts beyond the builtin set.
type ContractsConfig struct {
	// Dir holds extra CUE contracts. Empty means builtins only.
	Dir string `koanf:"dir"`
}

// EventsConfig selects the result sinks.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`
	Log     bool `koanf:"log"`

	// StorePath is the SQLite audit database. Empty disables the store.
	StorePath string `koanf:"store_path"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// Default returns the configuration Load produces with no file and no
// environment.
func Default() *Config {
	return &Config{
		Validation: ValidationConfig{
			Strictness:    contract.Medium,
			MaxInputBytes: parse.DefaultMaxInputBytes,
		},
		Events:  EventsConfig{Enabled: true, Log: true},
		Logging: *logging.NewDefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, Namespace: "aiguard"},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	var errs []error
	if _, err := contract.ParseStrictness(string(c.Validation.Strictness)); err != nil {
		errs = append(errs, fmt.Errorf("validation.strictness: %w", err))
	}
	if c.Validation.MaxInputBytes <= 0 {
		errs = append(errs, fmt.Errorf("validation.max_input_bytes must be > 0, got %d", c.Validation.MaxInputBytes))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Metrics.Enabled && !metricNamePattern.MatchString(c.Metrics.Namespace) {
		errs = append(errs, fmt.Errorf("metrics.namespace %q is not a valid metric name prefix", c.Metrics.Namespace))
	}
	return errors.Join(errs...)
}

// Sinks reports whether any result sink is configured.
func (c *Config) Sinks() bool {
	return c.Events.Enabled && (c.Events.Log || c.Events.StorePath != "" || c.Metrics.Enabled)
}
