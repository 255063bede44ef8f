// Package risk scores portfolio risk from realized volatility and drawdowns.
package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/vigil/internal/domain"
)

// Default alert thresholds
const (
	DefaultVolatilityThreshold = 0.30  // annualized
	DefaultDrawdownThreshold   = -0.15 // peak-to-trough, negative
)

const (
	tradingDays    = 252
	volWindow      = 20 // recent returns used for current volatility
	minReturns     = 5  // below this a symbol is not scored
	spikeMinPoints = 60 // price points needed for the spike baseline
)

// Alert types raised by the risk agent
const (
	AlertHighVolatility      = "HIGH_VOLATILITY"
	AlertSignificantDrawdown = "SIGNIFICANT_DRAWDOWN"
	AlertVolatilitySpike     = "VOLATILITY_SPIKE"
)

// Signal labels emitted by the risk agent
const (
	SignalDanger  = "DANGER"
	SignalCaution = "CAUTION"
	SignalWatch   = "WATCH"
	SignalStable  = "STABLE"
)

// SymbolRisk holds the per-symbol readings behind the aggregate score.
type SymbolRisk struct {
	Volatility float64 `json:"volatility"`
	Drawdown   float64 `json:"drawdown"`
	Score      float64 `json:"score"`
}

// Agent detects market risk through volatility and drawdown analysis.
type Agent struct {
	volThreshold float64
	ddThreshold  float64
	log          zerolog.Logger
}

// New creates a risk agent. Out-of-range thresholds fall back to the defaults.
func New(volThreshold, ddThreshold float64, log zerolog.Logger) *Agent {
	if volThreshold <= 0 {
		volThreshold = DefaultVolatilityThreshold
	}
	if ddThreshold >= 0 {
		ddThreshold = DefaultDrawdownThreshold
	}
	return &Agent{
		volThreshold: volThreshold,
		ddThreshold:  ddThreshold,
		log:          log.With().Str("agent", domain.AgentRisk).Logger(),
	}
}

// Name implements domain.Agent.
func (a *Agent) Name() string { return domain.AgentRisk }

// Analyze scores every symbol with enough history and aggregates the portfolio
// view. Symbols with fewer than 5 daily returns are skipped; when nothing is
// scorable the result degrades to UNKNOWN/NO_DATA.
func (a *Agent) Analyze(ctx context.Context, input *domain.AnalysisInput) domain.SignalResult {
	if input == nil || input.Market == nil || len(input.Market.History) == 0 {
		return a.emptyResult()
	}

	history := input.Market.History
	symbolRisks := make(map[string]SymbolRisk)
	alerts := []domain.Alert{}

	for _, symbol := range sortedSymbols(history) {
		bars := history[symbol]
		returns := bars.Returns()

		recent := tail(returns, volWindow)
		if len(recent) < minReturns {
			a.log.Debug().Str("symbol", symbol).Int("returns", len(returns)).Msg("Not enough history to score symbol")
			continue
		}

		vol := stat.StdDev(recent, nil) * math.Sqrt(tradingDays)
		dd := currentDrawdown(bars.Closes())

		volScore := math.Min(100, vol/a.volThreshold*50)
		ddScore := math.Min(100, math.Abs(dd/a.ddThreshold)*50)
		symbolRisks[symbol] = SymbolRisk{
			Volatility: vol,
			Drawdown:   dd,
			Score:      (volScore + ddScore) / 2,
		}

		if vol > a.volThreshold {
			severity := domain.SeverityMedium
			if vol > a.volThreshold*1.5 {
				severity = domain.SeverityHigh
			}
			alerts = append(alerts, domain.Alert{
				Type:     AlertHighVolatility,
				Severity: severity,
				Message:  fmt.Sprintf("%s: High volatility detected (%.2f%%)", symbol, vol*100),
				Value:    vol,
				Symbol:   symbol,
			})
		}

		if dd < a.ddThreshold {
			severity := domain.SeverityMedium
			if dd < a.ddThreshold*1.5 {
				severity = domain.SeverityHigh
			}
			alerts = append(alerts, domain.Alert{
				Type:     AlertSignificantDrawdown,
				Severity: severity,
				Message:  fmt.Sprintf("%s: Significant drawdown (%.2f%%)", symbol, dd*100),
				Value:    dd,
				Symbol:   symbol,
			})
		}

		// Spike check compares the recent window against the rest of the series.
		if len(bars) >= spikeMinPoints && len(returns) > volWindow {
			historical := stat.StdDev(returns[:len(returns)-volWindow], nil) * math.Sqrt(tradingDays)
			if historical > 0 && vol > historical*1.5 {
				alerts = append(alerts, domain.Alert{
					Type:     AlertVolatilitySpike,
					Severity: domain.SeverityMedium,
					Message:  fmt.Sprintf("%s: Volatility spike detected (current: %.2f%% vs avg: %.2f%%)", symbol, vol*100, historical*100),
					Value:    vol / historical,
					Symbol:   symbol,
				})
			}
		}
	}

	if len(symbolRisks) == 0 {
		return a.emptyResult()
	}

	scores := make([]float64, 0, len(symbolRisks))
	maxScore := 0.0
	for _, sr := range symbolRisks {
		scores = append(scores, sr.Score)
		if sr.Score > maxScore {
			maxScore = sr.Score
		}
	}
	overall := domain.ClampScore(stat.Mean(scores, nil))
	level := domain.RiskLevelFromScore(overall)

	a.log.Debug().
		Float64("score", overall).
		Str("level", string(level)).
		Int("symbols_scored", len(symbolRisks)).
		Int("alerts", len(alerts)).
		Msg("Risk analysis complete")

	return domain.SignalResult{
		Agent:      domain.AgentRisk,
		Score:      overall,
		Level:      level,
		Signal:     signalForLevel(level),
		Confidence: dataConfidence(history),
		Alerts:     alerts,
		Details: map[string]any{
			"symbols":          symbolRisks,
			"max_symbol_score": maxScore,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func (a *Agent) emptyResult() domain.SignalResult {
	return domain.SignalResult{
		Agent:       domain.AgentRisk,
		Level:       domain.RiskUnknown,
		Signal:      domain.SignalNoData,
		Alerts:      []domain.Alert{},
		GeneratedAt: time.Now().UTC(),
	}
}

// signalForLevel maps a risk level to the agent's categorical signal.
func signalForLevel(level domain.RiskLevel) string {
	switch level {
	case domain.RiskCritical:
		return SignalDanger
	case domain.RiskHigh:
		return SignalCaution
	case domain.RiskMedium:
		return SignalWatch
	default:
		return SignalStable
	}
}

// dataConfidence grades input quality by history length, averaged over all
// symbols: a full quarter of daily bars counts 1.0, a month 0.5, less 0.
func dataConfidence(history map[string]domain.PriceHistory) float64 {
	if len(history) == 0 {
		return 0
	}
	total := 0.0
	for _, bars := range history {
		switch {
		case len(bars) >= 60:
			total += 1.0
		case len(bars) >= 20:
			total += 0.5
		}
	}
	return total / float64(len(history))
}

// currentDrawdown returns the latest close relative to the series peak (<= 0).
func currentDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
	}
	if peak <= 0 {
		return 0
	}
	return closes[len(closes)-1]/peak - 1
}

// tail returns the last n elements of xs (all of xs when shorter).
func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func sortedSymbols(history map[string]domain.PriceHistory) []string {
	symbols := make([]string, 0, len(history))
	for s := range history {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
