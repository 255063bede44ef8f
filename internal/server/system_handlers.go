package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/reliability"
	"github.com/aristath/vigil/internal/scheduler"
)

// SystemConfig wires the system handler dependencies.
type SystemConfig struct {
	Log       zerolog.Logger
	DataDir   string
	Scheduler *scheduler.Scheduler
	Backup    *reliability.BackupService // nil when backups are disabled
	HistoryDB *database.DB
	CacheDB   *database.DB
}

// SystemHandlers serves the system monitoring and operations endpoints.
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	scheduler *scheduler.Scheduler
	backup    *reliability.BackupService
	historyDB *database.DB
	cacheDB   *database.DB
	started   time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(cfg SystemConfig) *SystemHandlers {
	return &SystemHandlers{
		log:       cfg.Log.With().Str("component", "system_handlers").Logger(),
		dataDir:   cfg.DataDir,
		scheduler: cfg.Scheduler,
		backup:    cfg.Backup,
		historyDB: cfg.HistoryDB,
		cacheDB:   cfg.CacheDB,
		started:   time.Now(),
	}
}

// HandleSystemStatus serves GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}

	// Best effort: missing host metrics are omitted, not errors
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}
	if usage, err := disk.Usage(h.dataDir); err == nil {
		status["disk"] = map[string]interface{}{
			"path":         h.dataDir,
			"total_gb":     float64(usage.Total) / 1024 / 1024 / 1024,
			"free_gb":      float64(usage.Free) / 1024 / 1024 / 1024,
			"used_percent": usage.UsedPercent,
		}
	}

	respondJSON(w, http.StatusOK, status)
}

// HandleDatabaseStats serves GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	for _, db := range []*database.DB{h.historyDB, h.cacheDB} {
		if db == nil {
			continue
		}
		dbStats, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to collect database stats")
			stats[db.Name()] = map[string]string{"error": err.Error()}
			continue
		}
		stats[db.Name()] = dbStats
	}
	respondJSON(w, http.StatusOK, stats)
}

// HandleJobsStatus serves GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.scheduler.Jobs()})
}

// HandleTriggerJob serves POST /api/system/jobs/{name} - manual job trigger
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.scheduler.Trigger(r.Context(), name); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

// HandleListBackups serves GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		respondError(w, http.StatusNotFound, "backups are not configured")
		return
	}
	backups, err := h.backup.List(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"backups": backups})
}

// HandleCreateBackup serves POST /api/system/backups
func (h *SystemHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		respondError(w, http.StatusNotFound, "backups are not configured")
		return
	}
	info, err := h.backup.CreateBackup(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, info)
}
