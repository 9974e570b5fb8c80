// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for ledgerd.
type Config struct {
	// MetricsAddr is the listen address for the /metrics and /healthz
	// endpoints.
	MetricsAddr string

	// SQLiteDBPath is the path of the SQLite database file.
	SQLiteDBPath string

	// ReconcileInterval is how often every group's derived caches are
	// rebuilt from the ledger. Zero disables the loop.
	ReconcileInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MetricsAddr:       getEnv("METRICS_ADDR", ":9097"),
		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
	}
}

// Validate checks the configuration and returns an error naming every
// invalid field.
func (c *Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLITE_DB_PATH must not be empty")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative, got %s", c.ReconcileInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
