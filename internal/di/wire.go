package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/agents/advisory"
	"github.com/aristath/vigil/internal/agents/correlation"
	"github.com/aristath/vigil/internal/agents/forecast"
	"github.com/aristath/vigil/internal/agents/risk"
	"github.com/aristath/vigil/internal/agents/sentiment"
	"github.com/aristath/vigil/internal/clientdata"
	"github.com/aristath/vigil/internal/clients/yahoo"
	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/engine"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/portfolio"
	"github.com/aristath/vigil/internal/reliability"
	"github.com/aristath/vigil/internal/scheduler"
)

// Cron schedules for the background jobs. The analysis cadence comes from
// configuration; backup and cleanup run in the quiet hours.
const (
	backupSchedule  = "0 3 * * *"
	cleanupSchedule = "30 0 * * *"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open and migrate the databases
// 2. Create repositories and the data supplier
// 3. Build the agents and the engine
// 4. Register the background jobs
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	if err := initDatabases(c, cfg, log); err != nil {
		return nil, err
	}

	c.HistoryRepo = history.NewRepository(c.HistoryDB.Conn(), log)
	c.CacheRepo = clientdata.NewRepository(c.CacheDB.Conn())
	c.Supplier = yahoo.NewNativeClient(c.CacheRepo, log)

	c.Bus = events.NewBus(log)
	c.Calculator = portfolio.NewCalculator(log)

	c.Engine = engine.New(engine.Config{
		Supplier:    c.Supplier,
		Risk:        risk.New(cfg.VolatilityThreshold, cfg.DrawdownThreshold, log),
		Forecast:    forecast.New(log),
		Sentiment:   sentiment.New(sentiment.VaderScorer{}, log),
		Correlation: correlation.New(cfg.CorrelationThreshold, log),
		Advisory:    advisory.New(log),
		Calculator:  c.Calculator,
		History:     c.HistoryRepo,
		Bus:         c.Bus,
		NewsLimit:   cfg.NewsLimit,
		Log:         log,
	})

	if cfg.Backup.Enabled() {
		backup, err := reliability.NewBackupService(ctx, cfg.Backup, cfg.DataDir, c.Bus, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize backup service: %w", err)
		}
		c.Backup = backup
	}

	if err := registerJobs(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Msg("Dependency injection wiring completed")
	return c, nil
}

func initDatabases(c *Container, cfg *config.Config, log zerolog.Logger) error {
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	if err := historyDB.Migrate(); err != nil {
		historyDB.Close()
		return fmt.Errorf("failed to migrate history database: %w", err)
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		historyDB.Close()
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		historyDB.Close()
		cacheDB.Close()
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}

	c.HistoryDB = historyDB
	c.CacheDB = cacheDB
	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return nil
}

func registerJobs(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(log)

	analysisSpec := fmt.Sprintf("@every %s", cfg.AnalysisInterval)
	analysisJob := scheduler.NewAnalysisJob(c.Engine, cfg.Watchlist, cfg.Period, log)
	if err := c.Scheduler.Register(analysisSpec, analysisJob); err != nil {
		return fmt.Errorf("failed to register analysis job: %w", err)
	}

	cleanupJob := scheduler.NewCleanupJob(c.HistoryRepo, c.CacheRepo, cfg.HistoryRetentionDays, c.Bus, log)
	if err := c.Scheduler.Register(cleanupSchedule, cleanupJob); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	if c.Backup != nil {
		dbs := []scheduler.Checkpointer{c.HistoryDB, c.CacheDB}
		backupJob := scheduler.NewBackupJob(c.Backup, dbs, log)
		if err := c.Scheduler.Register(backupSchedule, backupJob); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return nil
}
