// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/macroscope/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Provider credentials. The aggregator needs none.
	FredAPIKey        string
	TradingEconAPIKey string

	// Provider kill switches. MACRO_DISABLE_SOURCES is a comma-separated
	// provider list; anything not named stays enabled.
	DisabledSources []string

	// Batch ingest tuning
	BatchBudget        time.Duration // wall-clock budget per batch run
	BatchConcurrency   int           // concurrent indicator resolutions
	ProviderMinSpacing time.Duration // minimum spacing between calls to one provider

	// Backup target (S3-compatible). Backups are skipped when unset.
	BackupBucket    string
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
	BackupKeepDays  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MACRO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("MACRO_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		FredAPIKey:        getEnv("FRED_API_KEY", ""),
		TradingEconAPIKey: getEnv("TRADINGECON_API_KEY", ""),
		DisabledSources:   splitList(getEnv("MACRO_DISABLE_SOURCES", "")),

		BatchBudget:        time.Duration(getEnvAsInt("MACRO_BATCH_BUDGET_SECONDS", 240)) * time.Second,
		BatchConcurrency:   getEnvAsInt("MACRO_BATCH_CONCURRENCY", 4),
		ProviderMinSpacing: time.Duration(getEnvAsInt("MACRO_PROVIDER_SPACING_MS", 1500)) * time.Millisecond,

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		BackupKeepDays:  getEnvAsInt("BACKUP_KEEP_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
// Provider keys are optional: a missing key just disables that source.
func (c *Config) Validate() error {
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1")
	}
	if c.BatchBudget <= 0 {
		return fmt.Errorf("batch budget must be positive")
	}
	return nil
}

// Availability derives the source kill-switch map: explicitly disabled
// providers are off, as are providers whose required credentials are missing.
func (c *Config) Availability() domain.Availability {
	avail := domain.Availability{}
	for _, src := range c.DisabledSources {
		avail[src] = false
	}
	if c.FredAPIKey == "" {
		avail["fred"] = false
	}
	if c.TradingEconAPIKey == "" {
		avail["tradingecon"] = false
	}
	return avail
}

// BackupConfigured reports whether the S3 backup target is fully specified.
func (c *Config) BackupConfigured() bool {
	return c.BackupBucket != "" && c.BackupEndpoint != "" &&
		c.BackupAccessKey != "" && c.BackupSecretKey != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
