// Package config loads process configuration from environment variables,
// optionally overlaid by a YAML profile file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full process configuration.
type Config struct {
	DatabaseDriver string        `yaml:"database_driver"` // "postgres" | "sqlite"
	DatabaseURL    string        `yaml:"database_url"`
	LogLevel       string        `yaml:"log_level"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchSize      int           `yaml:"batch_size"`
	RedisAddr      string        `yaml:"redis_addr"` // empty disables the read-model cache
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
}

// Load reads configuration from environment variables. When
// CHRONICLE_PROFILE names a YAML file, its values override the
// environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDriver: envOr("DB_DRIVER", "sqlite"),
		DatabaseURL:    envOr("DATABASE_URL", "file:chronicle.db?_txlock=immediate&_pragma=busy_timeout(5000)"),
		LogLevel:       envOr("LOG_LEVEL", "INFO"),
		PollInterval:   time.Second,
		BatchSize:      100,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MetricsEnabled: os.Getenv("METRICS_ENABLED") == "true",
		OTLPEndpoint:   envOr("OTLP_ENDPOINT", "localhost:4317"),
	}

	if v := os.Getenv("WORKER_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse WORKER_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse WORKER_BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = n
	}

	if path := os.Getenv("CHRONICLE_PROFILE"); path != "" {
		if err := cfg.applyProfile(path); err != nil {
			return nil, err
		}
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

func (c *Config) applyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse profile %q: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
