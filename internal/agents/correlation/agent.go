// Package correlation measures co-movement across portfolio symbols and
// scores the diversification risk it implies.
package correlation

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

const (
	// DefaultHighCorrelationThreshold flags pairs and portfolio averages above it.
	DefaultHighCorrelationThreshold = 0.7

	minObservations = 20 // aligned rows required for any correlation work
	strictMinObs    = 60 // rows required before recent-vs-historical checks run
	recentWindowCap = 20 // upper bound on the recent comparison window
	increaseMargin  = 0.2
)

// Alert types raised by this agent.
const (
	AlertHighPortfolioCorrelation = "HIGH_PORTFOLIO_CORRELATION"
	AlertCorrelationIncrease      = "CORRELATION_INCREASE"
)

// Signals summarizing the diversification state.
const (
	SignalHighCorrelation     = "HIGH_CORRELATION"
	SignalModerateCorrelation = "MODERATE_CORRELATION"
	SignalWellDiversified     = "WELL_DIVERSIFIED"
)

// HighPair is a symbol pair whose full-sample correlation exceeds the threshold.
type HighPair struct {
	Pair        string  `json:"pair"`
	Correlation float64 `json:"correlation"`
	Type        string  `json:"type"`
}

// Increase records a pair whose recent correlation rose clear of its baseline.
type Increase struct {
	Pair       string  `json:"pair"`
	Recent     float64 `json:"recent"`
	Historical float64 `json:"historical"`
	Change     float64 `json:"change"`
}

// Agent computes pairwise Pearson correlations over date-aligned daily returns.
type Agent struct {
	highThreshold float64
	log           zerolog.Logger
}

// New creates a correlation agent. A non-positive threshold falls back to the
// default.
func New(highThreshold float64, log zerolog.Logger) *Agent {
	if highThreshold <= 0 {
		highThreshold = DefaultHighCorrelationThreshold
	}
	return &Agent{
		highThreshold: highThreshold,
		log:           log.With().Str("agent", domain.AgentCorrelation).Logger(),
	}
}

// Name implements domain.Agent.
func (a *Agent) Name() string { return domain.AgentCorrelation }

// Analyze inner-joins per-symbol returns on shared dates and grades the
// portfolio by its average pairwise correlation. Fewer than two usable
// symbols or fewer than 20 aligned observations yields a NO_DATA result.
func (a *Agent) Analyze(ctx context.Context, input *domain.AnalysisInput) domain.SignalResult {
	if input == nil || input.Market == nil || len(input.Market.History) < 2 {
		return a.emptyResult()
	}

	symbols, columns := alignedReturns(input.Market.History)
	if len(symbols) < 2 || len(columns[0]) < minObservations {
		return a.emptyResult()
	}
	n := len(columns[0])

	recentWindow := recentWindowCap
	if n/3 < recentWindow {
		recentWindow = n / 3
	}

	matrix := make(map[string]map[string]float64, len(symbols))
	for _, symbol := range symbols {
		matrix[symbol] = map[string]float64{symbol: 1}
	}

	highPairs := []HighPair{}
	increases := []Increase{}
	sum := 0.0
	defined := 0
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			pair := symbols[i] + "-" + symbols[j]
			corr, ok := pearson(columns[i], columns[j])
			if !ok {
				// Zero-variance column; the pair carries no signal.
				continue
			}
			matrix[symbols[i]][symbols[j]] = corr
			matrix[symbols[j]][symbols[i]] = corr
			sum += corr
			defined++

			if math.Abs(corr) > a.highThreshold {
				kind := "positive"
				if corr < 0 {
					kind = "negative"
				}
				highPairs = append(highPairs, HighPair{Pair: pair, Correlation: corr, Type: kind})
			}

			if n > strictMinObs {
				recent, okRecent := pearson(tail(columns[i], recentWindow), tail(columns[j], recentWindow))
				historical, okHist := pearson(columns[i][:n-recentWindow], columns[j][:n-recentWindow])
				if okRecent && okHist && math.Abs(recent) > math.Abs(historical)+increaseMargin {
					increases = append(increases, Increase{
						Pair:       pair,
						Recent:     recent,
						Historical: historical,
						Change:     recent - historical,
					})
				}
			}
		}
	}
	if defined == 0 {
		return a.emptyResult()
	}

	avg := sum / float64(defined)
	diversification := math.Max(0, 100*(1-math.Abs(avg)))

	alerts := []domain.Alert{}
	if math.Abs(avg) > a.highThreshold {
		alerts = append(alerts, domain.Alert{
			Type:     AlertHighPortfolioCorrelation,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("Portfolio shows high average correlation (%.2f)", avg),
			Value:    avg,
		})
	}
	for _, inc := range increases {
		alerts = append(alerts, domain.Alert{
			Type:     AlertCorrelationIncrease,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("%s: Correlation increased from %.2f to %.2f", inc.Pair, inc.Historical, inc.Recent),
			Value:    inc.Change,
			Symbol:   inc.Pair,
		})
	}

	score, level, signal := bandFor(avg)

	a.log.Debug().
		Int("symbols", len(symbols)).
		Int("observations", n).
		Float64("average_correlation", avg).
		Int("high_pairs", len(highPairs)).
		Int("increases", len(increases)).
		Msg("Correlation analysis complete")

	return domain.SignalResult{
		Agent:      domain.AgentCorrelation,
		Score:      score,
		Level:      level,
		Signal:     signal,
		Confidence: observationConfidence(n),
		Alerts:     alerts,
		Details: map[string]any{
			"correlation_matrix":    matrix,
			"average_correlation":   avg,
			"diversification_score": diversification,
			"high_correlations":     highPairs,
			"correlation_increases": increases,
			"observations":          n,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func (a *Agent) emptyResult() domain.SignalResult {
	return domain.SignalResult{
		Agent:      domain.AgentCorrelation,
		Score:      25,
		Level:      domain.RiskUnknown,
		Signal:     domain.SignalNoData,
		Confidence: 0,
		Alerts:     []domain.Alert{},
		Details: map[string]any{
			"correlation_matrix":    map[string]map[string]float64{},
			"average_correlation":   0.0,
			"diversification_score": 0.0,
			"high_correlations":     []HighPair{},
			"correlation_increases": []Increase{},
			"observations":          0,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

// bandFor maps the average correlation magnitude to score, level and signal.
func bandFor(avg float64) (float64, domain.RiskLevel, string) {
	abs := math.Abs(avg)
	switch {
	case abs > 0.8:
		return 75, domain.RiskHigh, SignalHighCorrelation
	case abs > 0.6:
		return 50, domain.RiskMedium, SignalModerateCorrelation
	default:
		return 25, domain.RiskLow, SignalWellDiversified
	}
}

func observationConfidence(n int) float64 {
	switch {
	case n >= 60:
		return 1.0
	case n >= 30:
		return 0.8
	case n >= 20:
		return 0.6
	default:
		return 0.4
	}
}

// pearson reports the sample correlation, or ok=false when it is undefined.
func pearson(x, y []float64) (float64, bool) {
	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	return corr, true
}

// alignedReturns inner-joins daily returns on shared dates. Columns come back
// in sorted-symbol order, one row per shared date, ascending. Symbols without
// any computable return are dropped.
func alignedReturns(history map[string]domain.PriceHistory) ([]string, [][]float64) {
	perSymbol := make(map[string]map[int64]float64, len(history))
	for symbol, bars := range history {
		series := dateReturns(bars)
		if len(series) > 0 {
			perSymbol[symbol] = series
		}
	}
	if len(perSymbol) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(perSymbol))
	for symbol := range perSymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	shared := make([]int64, 0, len(perSymbol[symbols[0]]))
	for date := range perSymbol[symbols[0]] {
		inAll := true
		for _, symbol := range symbols[1:] {
			if _, ok := perSymbol[symbol][date]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, date)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i] < shared[j] })

	columns := make([][]float64, len(symbols))
	for i, symbol := range symbols {
		column := make([]float64, len(shared))
		for r, date := range shared {
			column[r] = perSymbol[symbol][date]
		}
		columns[i] = column
	}
	return symbols, columns
}

// dateReturns keys each bar's simple return by its date (unix seconds).
func dateReturns(bars domain.PriceHistory) map[int64]float64 {
	if len(bars) < 2 {
		return nil
	}
	series := make(map[int64]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		series[bars[i].Date.Unix()] = bars[i].Close/prev - 1
	}
	return series
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
