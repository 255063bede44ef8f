// Package forecast predicts short-term market direction from price history.
// Each symbol gets a linear model over technical features; the per-symbol
// directions aggregate into a market sentiment reading.
package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/domain"
)

const (
	// minHistory is the bar count below which a symbol is not forecast
	minHistory = 30

	// trainHoldout is the number of latest feature rows kept out of training
	// and used for the direction accuracy check
	trainHoldout = 5
)

// Signal labels emitted by the forecast agent
const (
	SignalBullish = "BULLISH"
	SignalBearish = "BEARISH"
	SignalNeutral = "NEUTRAL"
)

// SentimentUnknown marks a run where no symbol could be forecast
const SentimentUnknown = "UNKNOWN"

// Direction labels for individual forecasts
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
	DirectionFlat = "FLAT"
)

// Trend labels attached to each forecast
const (
	TrendUp       = "UPTREND"
	TrendDown     = "DOWNTREND"
	TrendSideways = "SIDEWAYS"
)

// Forecast is the per-symbol prediction surfaced in Details.
type Forecast struct {
	PredictedReturn float64 `json:"predicted_return"`
	Direction       string  `json:"direction"`
	Confidence      float64 `json:"confidence"`
	Trend           string  `json:"trend"`
}

// Agent forecasts next-day returns symbol by symbol.
type Agent struct {
	log zerolog.Logger
}

// New creates a forecast agent.
func New(log zerolog.Logger) *Agent {
	return &Agent{log: log.With().Str("agent", domain.AgentForecast).Logger()}
}

// Name implements domain.Agent.
func (a *Agent) Name() string { return domain.AgentForecast }

// Analyze fits a model per symbol with at least 30 bars of history and folds
// the predicted directions into a BULLISH/BEARISH/NEUTRAL reading. A symbol
// whose model cannot be fit is skipped rather than failing the run.
func (a *Agent) Analyze(ctx context.Context, input *domain.AnalysisInput) domain.SignalResult {
	if input == nil || input.Market == nil || len(input.Market.History) == 0 {
		return a.emptyResult()
	}

	history := input.Market.History
	forecasts := make(map[string]Forecast)

	for _, symbol := range sortedSymbols(history) {
		bars := history[symbol]
		if len(bars) < minHistory {
			a.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Not enough history to forecast symbol")
			continue
		}

		fs := buildFeatures(bars)
		if len(fs.rows) <= trainHoldout {
			a.log.Debug().Str("symbol", symbol).Int("feature_rows", len(fs.rows)).Msg("Not enough feature rows to train")
			continue
		}

		cut := len(fs.rows) - trainHoldout
		coefs, err := fitOLS(fs.rows[:cut], fs.targets[:cut])
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("Model fit failed, skipping symbol")
			continue
		}

		last := fs.rows[len(fs.rows)-1]
		prediction := predict(coefs, last)
		if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
			a.log.Warn().Str("symbol", symbol).Msg("Unusable prediction, skipping symbol")
			continue
		}

		forecasts[symbol] = Forecast{
			PredictedReturn: prediction,
			Direction:       direction(prediction),
			Confidence:      directionConfidence(coefs, fs),
			Trend:           trendLabel(last),
		}
	}

	sentiment := marketSentiment(forecasts)
	avgPrediction := 0.0
	confidence := 0.0
	if len(forecasts) > 0 {
		for _, f := range forecasts {
			avgPrediction += f.PredictedReturn
			confidence += f.Confidence
		}
		avgPrediction /= float64(len(forecasts))
		confidence /= float64(len(forecasts))
	}

	signal := sentiment
	if sentiment == SentimentUnknown {
		signal = SignalNeutral
	}

	a.log.Debug().
		Str("sentiment", sentiment).
		Int("symbols_forecast", len(forecasts)).
		Float64("avg_prediction", avgPrediction).
		Msg("Forecast analysis complete")

	return domain.SignalResult{
		Agent:      domain.AgentForecast,
		Score:      scoreForSentiment(sentiment),
		Level:      levelForSentiment(sentiment),
		Signal:     signal,
		Confidence: confidence,
		Alerts:     []domain.Alert{},
		Details: map[string]any{
			"forecasts":          forecasts,
			"market_sentiment":   sentiment,
			"average_prediction": avgPrediction,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func (a *Agent) emptyResult() domain.SignalResult {
	return domain.SignalResult{
		Agent:      domain.AgentForecast,
		Score:      scoreForSentiment(SentimentUnknown),
		Level:      domain.RiskUnknown,
		Signal:     domain.SignalNoData,
		Confidence: 0,
		Alerts:     []domain.Alert{},
		Details: map[string]any{
			"forecasts":          map[string]Forecast{},
			"market_sentiment":   SentimentUnknown,
			"average_prediction": 0.0,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

// directionConfidence measures how often the model called the sign of the
// next-day return over the nine rows before the latest one. Thin feature sets
// fall back to coin-flip confidence.
func directionConfidence(coefs []float64, fs featureSet) float64 {
	if len(fs.rows) <= 10 {
		return 0.5
	}
	start := len(fs.rows) - 10
	end := len(fs.rows) - 1
	correct := 0
	for i := start; i < end; i++ {
		pred := predict(coefs, fs.rows[i])
		if (pred > 0) == (fs.targets[i] > 0) {
			correct++
		}
	}
	return float64(correct) / float64(end-start)
}

// marketSentiment tallies per-symbol directions into the aggregate reading.
func marketSentiment(forecasts map[string]Forecast) string {
	if len(forecasts) == 0 {
		return SentimentUnknown
	}
	up, down := 0, 0
	for _, f := range forecasts {
		switch f.Direction {
		case DirectionUp:
			up++
		case DirectionDown:
			down++
		}
	}
	switch {
	case up > down:
		return SignalBullish
	case down > up:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// scoreForSentiment carries the engine's forecast weighting: bearish markets
// push the unified risk score up, bullish ones pull it down.
func scoreForSentiment(sentiment string) float64 {
	switch sentiment {
	case SignalBearish:
		return 70
	case SignalBullish:
		return 30
	default:
		return 50
	}
}

func levelForSentiment(sentiment string) domain.RiskLevel {
	switch sentiment {
	case SignalBearish:
		return domain.RiskHigh
	case SignalBullish:
		return domain.RiskLow
	case SignalNeutral:
		return domain.RiskMedium
	default:
		return domain.RiskUnknown
	}
}

func direction(prediction float64) string {
	switch {
	case prediction > 0:
		return DirectionUp
	case prediction < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// trendLabel compares the short and long moving averages at a feature row.
func trendLabel(row []float64) string {
	sma5 := row[fSMA5]
	sma20 := row[fSMA20]
	switch {
	case sma5 > sma20*1.02:
		return TrendUp
	case sma5 < sma20*0.98:
		return TrendDown
	default:
		return TrendSideways
	}
}

func sortedSymbols(history map[string]domain.PriceHistory) []string {
	symbols := make([]string, 0, len(history))
	for s := range history {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
