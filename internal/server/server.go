// Package server provides the HTTP server and routing for Vigil.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/engine"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/portfolio"
	"github.com/aristath/vigil/internal/reliability"
	"github.com/aristath/vigil/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	Engine     *engine.Engine
	Supplier   domain.DataSupplier
	History    *history.Repository
	Calculator *portfolio.Calculator
	Bus        *events.Bus
	Scheduler  *scheduler.Scheduler
	Backup     *reliability.BackupService // nil when backups are disabled
	HistoryDB  *database.DB
	CacheDB    *database.DB
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	engine         *engine.Engine
	supplier       domain.DataSupplier
	history        *history.Repository
	calc           *portfolio.Calculator
	bus            *events.Bus
	historyDB      *database.DB
	cacheDB        *database.DB
	systemHandlers *SystemHandlers
	started        time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		engine:    cfg.Engine,
		supplier:  cfg.Supplier,
		history:   cfg.History,
		calc:      cfg.Calculator,
		bus:       cfg.Bus,
		historyDB: cfg.HistoryDB,
		cacheDB:   cfg.CacheDB,
		started:   time.Now(),
	}
	s.systemHandlers = NewSystemHandlers(SystemConfig{
		Log:       cfg.Log,
		DataDir:   cfg.Config.DataDir,
		Scheduler: cfg.Scheduler,
		Backup:    cfg.Backup,
		HistoryDB: cfg.HistoryDB,
		CacheDB:   cfg.CacheDB,
	})

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // analysis runs and SSE need headroom
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event streaming stays outside the timeout middleware below
		eventsHandler := NewEventsStreamHandler(s.bus, s.log)
		r.Get("/events/stream", eventsHandler.ServeSSE)
		r.Get("/events/ws", eventsHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/analysis", func(r chi.Router) {
				r.Get("/", s.handleAnalyze)
				r.Get("/latest", s.handleLatest)
				r.Get("/runs", s.handleRuns)
				r.Get("/runs/{id}", s.handleRun)
				r.Get("/runs/{id}/alerts", s.handleRunAlerts)
			})

			r.Get("/alerts", s.handleAlerts)
			r.Get("/signals/{agent}", s.handleSignal)
			r.Get("/portfolio/metrics", s.handlePortfolioMetrics)
			r.Get("/quotes", s.handleQuotes)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
				r.Get("/backups", s.systemHandlers.HandleListBackups)
				r.Post("/backups", s.systemHandlers.HandleCreateBackup)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
