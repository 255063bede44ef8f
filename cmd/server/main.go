// Package main is the entry point for the Vigil market risk analysis system.
// Vigil watches a portfolio's symbols, runs the analytic agents against fresh
// market data on a schedule, and serves the fused results over HTTP.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Agents and engine for analysis logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/di"
	"github.com/aristath/vigil/internal/server"
	"github.com/aristath/vigil/pkg/logger"
)

// main orchestrates the system startup sequence:
// 1. Loads configuration from environment variables (.env file)
// 2. Initializes the structured logger
// 3. Wires all dependencies via the DI container (databases, repositories,
//    agents, engine, scheduler, backup service)
// 4. Starts the HTTP server
// 5. Starts the job scheduler (periodic analysis, cleanup, backups)
// 6. Waits for a shutdown signal and performs graceful shutdown
//
// The application uses a 2-database layout:
// - history.db: Analysis run history and alerts
// - cache.db: Ephemeral market data cache (TTL-based)
func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger so the configuration error is still logged.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Structured logging (zerolog) with configurable log levels.
	// Pretty mode enables human-readable output for development.
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Strs("watchlist", cfg.Watchlist).
		Str("period", cfg.Period).
		Msg("Starting Vigil")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire all dependencies using the DI container.
	// This opens and migrates the databases, builds the repositories, the
	// market data supplier, the agents and the engine, and registers the
	// background jobs on the scheduler.
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Initialize HTTP server.
	// The server provides REST API endpoints for:
	// - Running analyses and reading past runs
	// - Alerts, per-agent signals, portfolio metrics, quotes
	// - Event streaming (SSE and WebSocket)
	// - System operations (status, job triggers, backups)
	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		Engine:     container.Engine,
		Supplier:   container.Supplier,
		History:    container.HistoryRepo,
		Calculator: container.Calculator,
		Bus:        container.Bus,
		Scheduler:  container.Scheduler,
		Backup:     container.Backup,
		HistoryDB:  container.HistoryDB,
		CacheDB:    container.CacheDB,
	})

	// Start server in a goroutine so the scheduler can start concurrently.
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Start the job scheduler. The first analysis run happens on the
	// configured interval; clients can trigger one immediately via the API.
	container.Scheduler.Start()
	log.Info().Str("interval", cfg.AnalysisInterval.String()).Msg("Scheduler started")

	// Wait for interrupt signal (SIGINT from Ctrl+C or SIGTERM from kill).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	// Stop the scheduler first so no new analyses start while the server
	// drains. In-progress jobs get a bounded window to finish.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	container.Scheduler.Stop(stopCtx)

	// Graceful shutdown: the HTTP server gets up to 10 seconds to finish
	// in-flight requests before being forced down.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
