// Package engine orchestrates one full analysis run: fetch a market snapshot,
// fan the four signal agents out over it, fuse their results into a unified
// risk score and a globally ordered alert list, and derive the advisory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/vigil/internal/agents/advisory"
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/portfolio"
)

// Fixed fusion weights. The risk reading dominates; the other three signals
// contribute equally. Not user-configurable.
const (
	WeightRisk        = 0.40
	WeightForecast    = 0.20
	WeightSentiment   = 0.20
	WeightCorrelation = 0.20
)

// ErrNoData is returned when the supplier answered but produced no usable
// history for any requested symbol. Distinct from a fetch failure.
var ErrNoData = errors.New("no market data for any requested symbol")

// Config wires the engine's collaborators. Supplier and the four agents are
// required; History and Bus are optional (nil disables persistence / events).
type Config struct {
	Supplier    domain.DataSupplier
	Risk        domain.Agent
	Forecast    domain.Agent
	Sentiment   domain.Agent
	Correlation domain.Agent
	Advisory    *advisory.Agent
	Calculator  *portfolio.Calculator
	History     *history.Repository
	Bus         *events.Bus
	NewsLimit   int
	Log         zerolog.Logger
}

// Engine runs the multi-signal analysis pipeline.
type Engine struct {
	supplier    domain.DataSupplier
	risk        domain.Agent
	forecast    domain.Agent
	sentiment   domain.Agent
	correlation domain.Agent
	advisory    *advisory.Agent
	calc        *portfolio.Calculator
	history     *history.Repository
	bus         *events.Bus
	newsLimit   int
	log         zerolog.Logger

	// Last completed summary, readable without re-running the pipeline.
	lastMu sync.RWMutex
	last   *domain.UnifiedSummary
}

// New creates an engine.
func New(cfg Config) *Engine {
	newsLimit := cfg.NewsLimit
	if newsLimit <= 0 {
		newsLimit = 10
	}
	return &Engine{
		supplier:    cfg.Supplier,
		risk:        cfg.Risk,
		forecast:    cfg.Forecast,
		sentiment:   cfg.Sentiment,
		correlation: cfg.Correlation,
		advisory:    cfg.Advisory,
		calc:        cfg.Calculator,
		history:     cfg.History,
		bus:         cfg.Bus,
		newsLimit:   newsLimit,
		log:         cfg.Log.With().Str("component", "engine").Logger(),
	}
}

// Analyze executes one full run over the given symbols. A market data fetch
// failure fails the run; news and quote failures degrade to empty input. A
// failing agent degrades to its NO_DATA result and never aborts the run.
func (e *Engine) Analyze(ctx context.Context, symbols []string, period string) (*domain.UnifiedSummary, error) {
	runID := uuid.New().String()
	started := time.Now()

	e.log.Info().
		Str("run_id", runID).
		Strs("symbols", symbols).
		Str("period", period).
		Msg("Starting analysis run")
	e.publish(events.AnalysisStarted, &events.AnalysisStartedData{
		RunID:   runID,
		Symbols: symbols,
		Period:  period,
	})

	market, err := e.supplier.FetchHistory(ctx, symbols, period)
	if err != nil {
		e.publish(events.AnalysisFailed, &events.AnalysisFailedData{RunID: runID, Error: err.Error()})
		return nil, fmt.Errorf("market data fetch failed: %w", err)
	}
	if market == nil || len(market.History) == 0 {
		e.publish(events.AnalysisFailed, &events.AnalysisFailedData{RunID: runID, Error: ErrNoData.Error()})
		return nil, ErrNoData
	}

	// News and quotes are best effort; sentiment degrades to NO_DATA on an
	// empty news map and quotes are simply omitted.
	news, err := e.supplier.FetchNews(ctx, symbols, e.newsLimit)
	if err != nil {
		e.log.Warn().Err(err).Msg("News fetch failed, sentiment will see no headlines")
		news = nil
	}
	quotes, err := e.supplier.FetchQuotes(ctx, symbols)
	if err != nil {
		e.log.Warn().Err(err).Msg("Quote fetch failed, summary will carry no quotes")
		quotes = nil
	}

	input := &domain.AnalysisInput{Market: market, News: news}
	results := e.runAgents(ctx, input)

	riskResult := results[domain.AgentRisk]
	forecastResult := results[domain.AgentForecast]
	sentimentResult := results[domain.AgentSentiment]
	correlationResult := results[domain.AgentCorrelation]

	// Each agent's Score already carries its documented engine mapping, so
	// the fusion step is a plain weighted sum.
	unifiedScore := domain.ClampScore(
		WeightRisk*riskResult.Score +
			WeightForecast*forecastResult.Score +
			WeightSentiment*sentimentResult.Score +
			WeightCorrelation*correlationResult.Score)

	advisoryResult := e.advisory.Advise(riskResult, forecastResult, sentimentResult, correlationResult)

	summary := &domain.UnifiedSummary{
		RunID:        runID,
		GeneratedAt:  started.UTC(),
		Symbols:      market.Symbols,
		Period:       market.Period,
		UnifiedScore: unifiedScore,
		UnifiedLevel: domain.RiskLevelFromScore(unifiedScore),
		Signals:      results,
		Advisory:     advisoryResult,
		Alerts:       mergeAlerts(riskResult, forecastResult, sentimentResult, correlationResult),
		Quotes:       quotes,
		DurationMS:   time.Since(started).Milliseconds(),
	}
	if e.calc != nil {
		summary.PortfolioMetrics = e.calc.Metrics(market, nil)
	}

	e.lastMu.Lock()
	e.last = summary
	e.lastMu.Unlock()

	if e.history != nil {
		if err := e.history.SaveRun(summary); err != nil {
			e.log.Error().Err(err).Str("run_id", runID).Msg("Failed to persist analysis run")
		}
	}

	e.publish(events.AnalysisCompleted, &events.AnalysisCompletedData{
		RunID:        runID,
		UnifiedScore: summary.UnifiedScore,
		UnifiedLevel: string(summary.UnifiedLevel),
		Alerts:       len(summary.Alerts),
		Duration:     time.Since(started).Seconds(),
	})
	e.publishAlertsRaised(summary)

	e.log.Info().
		Str("run_id", runID).
		Float64("unified_score", summary.UnifiedScore).
		Str("unified_level", string(summary.UnifiedLevel)).
		Int("alerts", len(summary.Alerts)).
		Dur("duration", time.Since(started)).
		Msg("Analysis run completed")

	return summary, nil
}

// runAgents executes the four base agents concurrently over the shared
// snapshot. Agents are independent, so ordering does not matter; a panicking
// agent yields an error-shaped NO_DATA result instead of failing the run.
func (e *Engine) runAgents(ctx context.Context, input *domain.AnalysisInput) map[string]domain.SignalResult {
	agents := []domain.Agent{e.risk, e.forecast, e.sentiment, e.correlation}

	var mu sync.Mutex
	results := make(map[string]domain.SignalResult, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range agents {
		g.Go(func() error {
			result := e.safeAnalyze(gctx, agent, input)
			mu.Lock()
			results[agent.Name()] = result
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; the group is used for the join.
	_ = g.Wait()

	return results
}

// safeAnalyze guards one agent invocation against panics.
func (e *Engine) safeAnalyze(ctx context.Context, agent domain.Agent, input *domain.AnalysisInput) (result domain.SignalResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Str("agent", agent.Name()).
				Interface("panic", r).
				Msg("Agent panicked, degrading to NO_DATA result")
			result = domain.SignalResult{
				Agent:       agent.Name(),
				Level:       domain.RiskUnknown,
				Signal:      domain.SignalNoData,
				GeneratedAt: time.Now().UTC(),
				Err:         fmt.Sprintf("agent panic: %v", r),
			}
		}
	}()
	return agent.Analyze(ctx, input)
}

// mergeAlerts concatenates the base agents' alerts in fixed order, stamps the
// source agent on each and sorts by severity rank descending. The sort is
// stable, so ties keep the agent contribution order.
func mergeAlerts(results ...domain.SignalResult) []domain.Alert {
	merged := []domain.Alert{}
	for _, result := range results {
		for _, alert := range result.Alerts {
			alert.Source = result.Agent
			merged = append(merged, alert)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return domain.SeverityRank(merged[i].Severity) > domain.SeverityRank(merged[j].Severity)
	})
	return merged
}

// Last returns the most recent completed summary, or nil before the first run.
func (e *Engine) Last() *domain.UnifiedSummary {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last
}

// LastSignal returns the named agent's signal label from the last run.
// The boolean is false before any run or for an unknown agent name.
func (e *Engine) LastSignal(agent string) (string, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return "", false
	}
	result, ok := e.last.Signals[agent]
	if !ok {
		return "", false
	}
	return result.Signal, true
}

// LastConfidence returns the named agent's confidence from the last run.
func (e *Engine) LastConfidence(agent string) (float64, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return 0, false
	}
	result, ok := e.last.Signals[agent]
	if !ok {
		return 0, false
	}
	return result.Confidence, true
}

func (e *Engine) publish(eventType events.EventType, data events.EventData) {
	if e.bus != nil {
		e.bus.Publish(eventType, "engine", data)
	}
}

// publishAlertsRaised emits an alerts.raised event when the run produced any
// HIGH or CRITICAL alert.
func (e *Engine) publishAlertsRaised(summary *domain.UnifiedSummary) {
	var critical, high int
	for _, alert := range summary.Alerts {
		switch alert.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityHigh:
			high++
		}
	}
	if critical+high == 0 {
		return
	}
	e.publish(events.AlertsRaised, &events.AlertsRaisedData{
		RunID:    summary.RunID,
		Critical: critical,
		High:     high,
		Total:    len(summary.Alerts),
	})
}
