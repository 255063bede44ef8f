package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VIGIL_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "1y", cfg.Period)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "AMZN"}, cfg.Watchlist)
	assert.Equal(t, 0.30, cfg.VolatilityThreshold)
	assert.Equal(t, -0.15, cfg.DrawdownThreshold)
	assert.Equal(t, 0.70, cfg.CorrelationThreshold)
	assert.Equal(t, 15*time.Minute, cfg.AnalysisInterval)
	assert.Equal(t, 90, cfg.HistoryRetentionDays)
	assert.False(t, cfg.Backup.Enabled(), "backups should be disabled without a bucket")

	// Data dir must exist and be absolute
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err, "data directory should be created on load")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VIGIL_DATA_DIR", t.TempDir())
	t.Setenv("VIGIL_PORT", "9999")
	t.Setenv("VIGIL_WATCHLIST", " nvda , tsla ")
	t.Setenv("VIGIL_VOLATILITY_THRESHOLD", "0.45")
	t.Setenv("VIGIL_ANALYSIS_INTERVAL_MINUTES", "5")
	t.Setenv("VIGIL_BACKUP_BUCKET", "vigil-snapshots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, []string{"NVDA", "TSLA"}, cfg.Watchlist, "watchlist entries are trimmed and upper-cased")
	assert.Equal(t, 0.45, cfg.VolatilityThreshold)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisInterval)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 14, cfg.Backup.Keep)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                 8090,
			Watchlist:            []string{"AAPL"},
			VolatilityThreshold:  0.30,
			DrawdownThreshold:    -0.15,
			CorrelationThreshold: 0.7,
			AnalysisInterval:     15 * time.Minute,
			HistoryRetentionDays: 90,
		}
	}

	cfg := base()
	cfg.DrawdownThreshold = 0.15
	assert.Error(t, cfg.Validate(), "positive drawdown threshold must be rejected")

	cfg = base()
	cfg.VolatilityThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.CorrelationThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Watchlist = nil
	assert.Error(t, cfg.Validate())

	assert.NoError(t, base().Validate())
}
