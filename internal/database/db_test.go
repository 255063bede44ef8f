package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string, profile Profile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateAppliesSchema(t *testing.T) {
	db := openTestDB(t, "history", ProfileStandard)

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM analysis_runs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Re-running the migration is a no-op, not an error
	assert.NoError(t, db.Migrate())
}

func TestMigrateUnknownName(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "other.db"),
		Profile: ProfileStandard,
		Name:    "no-such-schema",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Error(t, db.Migrate())
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t, "cache", ProfileCache)

	assert.NoError(t, db.HealthCheck(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()), "a closed database is unhealthy")
}

func TestWALCheckpoint(t *testing.T) {
	db := openTestDB(t, "history", ProfileStandard)

	_, err := db.Exec(`
		INSERT INTO analysis_runs (
			run_id, generated_at, symbols, period, unified_score,
			unified_level, advisory_action, advisory_confidence,
			duration_ms, summary_json
		) VALUES ('run-1', '2026-03-10T10:00:00Z', 'AAPL', '1y', 42.5,
			'MEDIUM', 'MONITOR_CLOSELY', 0.8, 1500, '{}')
	`)
	require.NoError(t, err)

	// Empty mode falls back to TRUNCATE
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM analysis_runs").Scan(&count))
	assert.Equal(t, 1, count, "checkpointing must not lose committed rows")
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t, "history", ProfileStandard)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Positive(t, stats.PageCount)
	assert.Positive(t, stats.PageSize)
}
