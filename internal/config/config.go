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
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases (always absolute, created on load)
	Port     int
	LogLevel string
	DevMode  bool

	// Watchlist analyzed by the scheduled job; the API accepts any symbols.
	Watchlist []string
	Period    string // Default history period (1mo,3mo,6mo,1y,2y,5y)
	NewsLimit int    // Max headlines fetched per symbol

	// Agent thresholds (see the agent packages for the semantics)
	VolatilityThreshold  float64 // Annualized, e.g. 0.30
	DrawdownThreshold    float64 // Negative, e.g. -0.15
	CorrelationThreshold float64 // Absolute pairwise correlation, e.g. 0.70

	// Background jobs
	AnalysisInterval     time.Duration // Scheduled analysis cadence
	HistoryRetentionDays int           // Runs older than this are pruned

	Backup *BackupConfig
}

// BackupConfig holds S3 snapshot backup configuration.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // Optional S3-compatible endpoint (e.g. R2, MinIO)
	AccessKey string
	SecretKey string
	Keep      int // Number of archives retained after rotation
}

// Enabled reports whether backups are configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists
	// before any database is opened.
	dataDir := getEnv("VIGIL_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("VIGIL_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Watchlist: splitList(getEnv("VIGIL_WATCHLIST", "AAPL,MSFT,GOOGL,AMZN")),
		Period:    getEnv("VIGIL_PERIOD", "1y"),
		NewsLimit: getEnvAsInt("VIGIL_NEWS_LIMIT", 10),

		VolatilityThreshold:  getEnvAsFloat("VIGIL_VOLATILITY_THRESHOLD", 0.30),
		DrawdownThreshold:    getEnvAsFloat("VIGIL_DRAWDOWN_THRESHOLD", -0.15),
		CorrelationThreshold: getEnvAsFloat("VIGIL_CORRELATION_THRESHOLD", 0.70),

		AnalysisInterval:     time.Duration(getEnvAsInt("VIGIL_ANALYSIS_INTERVAL_MINUTES", 15)) * time.Minute,
		HistoryRetentionDays: getEnvAsInt("VIGIL_HISTORY_RETENTION_DAYS", 90),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must contain at least one symbol")
	}
	if c.VolatilityThreshold <= 0 {
		return fmt.Errorf("volatility threshold must be positive, got %v", c.VolatilityThreshold)
	}
	if c.DrawdownThreshold >= 0 {
		return fmt.Errorf("drawdown threshold must be negative, got %v", c.DrawdownThreshold)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1], got %v", c.CorrelationThreshold)
	}
	if c.AnalysisInterval < time.Minute {
		return fmt.Errorf("analysis interval must be at least one minute, got %v", c.AnalysisInterval)
	}
	if c.HistoryRetentionDays < 1 {
		return fmt.Errorf("history retention must be at least one day, got %d", c.HistoryRetentionDays)
	}
	return nil
}

// loadBackupConfig loads S3 backup settings; nil-safe defaults when unset
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:    getEnv("VIGIL_BACKUP_BUCKET", ""),
		Prefix:    getEnv("VIGIL_BACKUP_PREFIX", "vigil-backups"),
		Region:    getEnv("VIGIL_BACKUP_REGION", "auto"),
		Endpoint:  getEnv("VIGIL_BACKUP_ENDPOINT", ""),
		AccessKey: getEnv("VIGIL_BACKUP_ACCESS_KEY", ""),
		SecretKey: getEnv("VIGIL_BACKUP_SECRET_KEY", ""),
		Keep:      getEnvAsInt("VIGIL_BACKUP_KEEP", 14),
	}
}

// splitList parses a comma-separated symbol list, trimming and upper-casing
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
