package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/vigil/internal/clients/yahoo"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/engine"
)

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the JSON error envelope
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth serves GET /health. The databases are pinged and integrity
// checked; a failing database degrades the status to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	databases := map[string]string{}
	for _, db := range []*database.DB{s.historyDB, s.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			status = "degraded"
			databases[db.Name()] = err.Error()
		} else {
			databases[db.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	payload := map[string]interface{}{
		"status":         status,
		"go_version":     runtime.Version(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if len(databases) > 0 {
		payload["databases"] = databases
	}
	respondJSON(w, code, payload)
}

// parseSymbols splits and normalizes the symbols query parameter, falling back
// to the configured watchlist when absent.
func (s *Server) parseSymbols(r *http.Request) []string {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		return s.cfg.Watchlist
	}
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if sym := strings.ToUpper(strings.TrimSpace(p)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

func (s *Server) parsePeriod(r *http.Request) string {
	if period := r.URL.Query().Get("period"); period != "" {
		return period
	}
	return s.cfg.Period
}

// handleAnalyze serves GET /api/analysis - runs the pipeline now
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbols := s.parseSymbols(r)
	if len(symbols) == 0 {
		respondError(w, http.StatusBadRequest, "no symbols given")
		return
	}

	summary, err := s.engine.Analyze(r.Context(), symbols, s.parsePeriod(r))
	if err != nil {
		var fetchErr *yahoo.FetchError
		switch {
		case errors.As(err, &fetchErr):
			respondError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, engine.ErrNoData):
			respondError(w, http.StatusNotFound, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// latestSummary prefers the in-memory result, falling back to persistence
// after a restart.
func (s *Server) latestSummary() (*domain.UnifiedSummary, error) {
	if last := s.engine.Last(); last != nil {
		return last, nil
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.Latest()
}

// handleLatest serves GET /api/analysis/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	summary, err := s.latestSummary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "no completed analysis run")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleRuns serves GET /api/analysis/runs?limit=N
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.history.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
}

// handleRun serves GET /api/analysis/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	summary, err := s.history.Get(runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleRunAlerts serves GET /api/analysis/runs/{id}/alerts?severity=HIGH -
// one stored run's alerts at or above the given minimum severity.
func (s *Server) handleRunAlerts(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	severity := r.URL.Query().Get("severity")
	if severity != "" && domain.SeverityRank(domain.Severity(strings.ToUpper(severity))) == 0 {
		respondError(w, http.StatusBadRequest, "unknown severity: "+severity)
		return
	}

	summary, err := s.history.Get(runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}

	alerts, err := s.history.Alerts(runID, severity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"alerts": alerts,
	})
}

// handleAlerts serves GET /api/alerts?severity=HIGH - the latest run's alerts
// at or above the given minimum severity.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	summary, err := s.latestSummary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "no completed analysis run")
		return
	}

	minRank := 0
	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity := domain.Severity(strings.ToUpper(raw))
		minRank = domain.SeverityRank(severity)
		if minRank == 0 {
			respondError(w, http.StatusBadRequest, "unknown severity: "+raw)
			return
		}
	}

	alerts := []domain.Alert{}
	for _, alert := range summary.Alerts {
		if domain.SeverityRank(alert.Severity) >= minRank {
			alerts = append(alerts, alert)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": summary.RunID,
		"alerts": alerts,
	})
}

// handleSignal serves GET /api/signals/{agent} - the named agent's signal and
// confidence from the last completed run, without re-running analysis.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")

	signal, ok := s.engine.LastSignal(agent)
	if !ok {
		respondError(w, http.StatusNotFound, "no signal for agent: "+agent)
		return
	}
	confidence, _ := s.engine.LastConfidence(agent)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent":      agent,
		"signal":     signal,
		"confidence": confidence,
	})
}

// handlePortfolioMetrics serves GET /api/portfolio/metrics?symbols&period
func (s *Server) handlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	symbols := s.parseSymbols(r)
	if len(symbols) == 0 {
		respondError(w, http.StatusBadRequest, "no symbols given")
		return
	}

	market, err := s.supplier.FetchHistory(r.Context(), symbols, s.parsePeriod(r))
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	metrics := s.calc.Metrics(market, nil)
	if metrics == nil {
		respondError(w, http.StatusNotFound, "not enough aligned history to compute metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// handleQuotes serves GET /api/quotes?symbols
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols := s.parseSymbols(r)
	if len(symbols) == 0 {
		respondError(w, http.StatusBadRequest, "no symbols given")
		return
	}

	quotes, err := s.supplier.FetchQuotes(r.Context(), symbols)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}
