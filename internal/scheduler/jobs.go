package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/clientdata"
	"github.com/aristath/vigil/internal/engine"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/reliability"
)

// Job names used for registration and manual API triggers.
const (
	JobAnalysis = "analysis"
	JobBackup   = "backup"
	JobCleanup  = "cleanup"
)

// AnalysisJob runs the engine over the configured watchlist. Overlapping runs
// are skipped: if a run is still in flight when the next tick fires, the tick
// is dropped rather than queued.
type AnalysisJob struct {
	engine    *engine.Engine
	watchlist []string
	period    string
	timeout   time.Duration
	running   sync.Mutex
	log       zerolog.Logger
}

// NewAnalysisJob creates the scheduled analysis job.
func NewAnalysisJob(eng *engine.Engine, watchlist []string, period string, log zerolog.Logger) *AnalysisJob {
	return &AnalysisJob{
		engine:    eng,
		watchlist: watchlist,
		period:    period,
		timeout:   5 * time.Minute,
		log:       log.With().Str("job", JobAnalysis).Logger(),
	}
}

// Name implements Job.
func (j *AnalysisJob) Name() string { return JobAnalysis }

// Run implements Job.
func (j *AnalysisJob) Run(ctx context.Context) error {
	if !j.running.TryLock() {
		j.log.Warn().Msg("Previous analysis still running, skipping this tick")
		return nil
	}
	defer j.running.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	summary, err := j.engine.Analyze(runCtx, j.watchlist, j.period)
	if err != nil {
		return fmt.Errorf("scheduled analysis failed: %w", err)
	}

	j.log.Info().
		Str("run_id", summary.RunID).
		Float64("unified_score", summary.UnifiedScore).
		Msg("Scheduled analysis completed")
	return nil
}

// Snapshotter is the backup operation the job invokes.
type Snapshotter interface {
	CreateBackup(ctx context.Context) (*reliability.BackupInfo, error)
}

// Checkpointer flushes a database's WAL so the archive captures every
// committed write.
type Checkpointer interface {
	Name() string
	WALCheckpoint(mode string) error
}

// BackupJob uploads a snapshot of the databases to S3, checkpointing each
// database's WAL first.
type BackupJob struct {
	backup Snapshotter
	dbs    []Checkpointer
	log    zerolog.Logger
}

// NewBackupJob creates the daily backup job.
func NewBackupJob(backup Snapshotter, dbs []Checkpointer, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup: backup,
		dbs:    dbs,
		log:    log.With().Str("job", JobBackup).Logger(),
	}
}

// Name implements Job.
func (j *BackupJob) Name() string { return JobBackup }

// Run implements Job.
func (j *BackupJob) Run(ctx context.Context) error {
	// A failed checkpoint still leaves a consistent WAL-mode database in the
	// archive, so it does not abort the backup.
	for _, db := range j.dbs {
		if err := db.WALCheckpoint(""); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed before backup")
		}
	}

	info, err := j.backup.CreateBackup(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Str("key", info.Key).Int64("size_bytes", info.SizeBytes).Msg("Backup job completed")
	return nil
}

// CleanupJob prunes analysis runs past the retention window and expired cache
// rows, and emits a cache.cleaned event with the counts.
type CleanupJob struct {
	history       *history.Repository
	cache         *clientdata.Repository
	retentionDays int
	bus           *events.Bus
	log           zerolog.Logger
}

// NewCleanupJob creates the daily retention job.
func NewCleanupJob(hist *history.Repository, cache *clientdata.Repository, retentionDays int, bus *events.Bus, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		history:       hist,
		cache:         cache,
		retentionDays: retentionDays,
		bus:           bus,
		log:           log.With().Str("job", JobCleanup).Logger(),
	}
}

// Name implements Job.
func (j *CleanupJob) Name() string { return JobCleanup }

// Run implements Job.
func (j *CleanupJob) Run(_ context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	runsRemoved, err := j.history.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune analysis history: %w", err)
	}

	cacheRemoved, err := j.cache.DeleteExpired()
	if err != nil {
		return fmt.Errorf("failed to prune expired cache rows: %w", err)
	}

	if j.bus != nil && (runsRemoved > 0 || cacheRemoved > 0) {
		j.bus.Publish(events.CacheCleaned, "scheduler", &events.CacheCleanedData{
			RunsRemoved:  runsRemoved,
			CacheRemoved: cacheRemoved,
		})
	}

	j.log.Info().
		Int64("runs_removed", runsRemoved).
		Int64("cache_removed", cacheRemoved).
		Time("cutoff", cutoff).
		Msg("Cleanup completed")
	return nil
}
