// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/vigil/internal/clientdata"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/engine"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/portfolio"
	"github.com/aristath/vigil/internal/reliability"
	"github.com/aristath/vigil/internal/scheduler"
)

// Container holds all application dependencies.
//
// It is the single source of truth for service instances: created once by
// Wire() and handed to the server and the entry point. Construction order is
// databases, repositories, services, jobs.
type Container struct {
	// Databases (two-database architecture)
	HistoryDB *database.DB // Analysis runs and their alerts
	CacheDB   *database.DB // Msgpack-encoded upstream payload cache

	// Repositories
	HistoryRepo *history.Repository
	CacheRepo   *clientdata.Repository

	// Clients
	Supplier domain.DataSupplier // Market data supplier (Yahoo native client)

	// Services
	Bus        *events.Bus
	Calculator *portfolio.Calculator
	Engine     *engine.Engine
	Backup     *reliability.BackupService // nil when backups are disabled
	Scheduler  *scheduler.Scheduler
}

// Close releases the container's database handles.
func (c *Container) Close() {
	if c.HistoryDB != nil {
		c.HistoryDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
