package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/vigil/internal/domain"
)

var testStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// compounded builds a daily history by applying each return to the prior
// close, so the recovered return series matches rets.
func compounded(start time.Time, base float64, rets []float64) domain.PriceHistory {
	bars := make(domain.PriceHistory, len(rets)+1)
	bars[0] = domain.PricePoint{Date: start, Close: base, Volume: 1000}
	price := base
	for i, r := range rets {
		price *= 1 + r
		bars[i+1] = domain.PricePoint{Date: start.AddDate(0, 0, i+1), Close: price, Volume: 1000}
	}
	return bars
}

// repeatPattern tiles pattern until n entries are produced.
func repeatPattern(pattern []float64, n int) []float64 {
	rets := make([]float64, n)
	for i := range rets {
		rets[i] = pattern[i%len(pattern)]
	}
	return rets
}

func inputFor(history map[string]domain.PriceHistory) *domain.AnalysisInput {
	symbols := make([]string, 0, len(history))
	for symbol := range history {
		symbols = append(symbols, symbol)
	}
	return &domain.AnalysisInput{
		Market: &domain.MarketData{Symbols: symbols, History: history},
	}
}

func TestCorrelationAgent_Name(t *testing.T) {
	agent := New(0, zerolog.Nop())
	assert.Equal(t, "correlation", agent.Name())
	assert.Equal(t, DefaultHighCorrelationThreshold, agent.highThreshold)
}

func TestCorrelationAgent_EmptyInput(t *testing.T) {
	agent := New(0, zerolog.Nop())

	single := map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, repeatPattern([]float64{0.01, -0.01}, 30)),
	}
	for name, input := range map[string]*domain.AnalysisInput{
		"nil input":     nil,
		"nil market":    {},
		"one symbol":    inputFor(single),
		"empty history": inputFor(map[string]domain.PriceHistory{}),
	} {
		t.Run(name, func(t *testing.T) {
			result := agent.Analyze(context.Background(), input)
			assert.Equal(t, domain.AgentCorrelation, result.Agent)
			assert.Equal(t, 25.0, result.Score)
			assert.Equal(t, domain.RiskUnknown, result.Level)
			assert.Equal(t, domain.SignalNoData, result.Signal)
			assert.Equal(t, 0.0, result.Confidence)
			assert.Empty(t, result.Alerts)
		})
	}
}

func TestCorrelationAgent_TooFewObservations(t *testing.T) {
	agent := New(0, zerolog.Nop())

	// 15 bars each, 14 aligned returns.
	rets := repeatPattern([]float64{0.01, -0.01}, 14)
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, rets),
		"BBB": compounded(testStart, 50, rets),
	}))
	assert.Equal(t, domain.SignalNoData, result.Signal)

	// Plenty of bars but no shared dates.
	long := repeatPattern([]float64{0.01, -0.01}, 40)
	result = agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, long),
		"BBB": compounded(testStart.AddDate(1, 0, 0), 50, long),
	}))
	assert.Equal(t, domain.SignalNoData, result.Signal)
}

// TestCorrelationAgent_PerfectlyCorrelated feeds two symbols the same return
// pattern: correlation 1, no diversification, HIGH across the board.
func TestCorrelationAgent_PerfectlyCorrelated(t *testing.T) {
	agent := New(0, zerolog.Nop())

	rets := repeatPattern([]float64{0.01, -0.01}, 30)
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, rets),
		"BBB": compounded(testStart, 50, rets),
	}))

	assert.Equal(t, 75.0, result.Score)
	assert.Equal(t, domain.RiskHigh, result.Level)
	assert.Equal(t, SignalHighCorrelation, result.Signal)
	assert.Equal(t, 0.8, result.Confidence, "30 observations")

	require.Len(t, result.Alerts, 1)
	alert := result.Alerts[0]
	assert.Equal(t, AlertHighPortfolioCorrelation, alert.Type)
	assert.Equal(t, domain.SeverityHigh, alert.Severity)
	assert.Equal(t, "Portfolio shows high average correlation (1.00)", alert.Message)

	highPairs, ok := result.Details["high_correlations"].([]HighPair)
	require.True(t, ok)
	require.Len(t, highPairs, 1)
	assert.Equal(t, "AAA-BBB", highPairs[0].Pair)
	assert.Equal(t, "positive", highPairs[0].Type)
	assert.InDelta(t, 1.0, highPairs[0].Correlation, 1e-9)

	assert.InDelta(t, 0.0, result.Details["diversification_score"].(float64), 1e-6)
	assert.Equal(t, 30, result.Details["observations"].(int))
}

// TestCorrelationAgent_AntiCorrelated mirrors one symbol's returns: the pair
// reads negative but the magnitude still lands in the HIGH band.
func TestCorrelationAgent_AntiCorrelated(t *testing.T) {
	agent := New(0, zerolog.Nop())

	rets := repeatPattern([]float64{0.01, -0.01}, 30)
	mirrored := make([]float64, len(rets))
	for i, r := range rets {
		mirrored[i] = -r
	}
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, rets),
		"BBB": compounded(testStart, 50, mirrored),
	}))

	assert.Equal(t, domain.RiskHigh, result.Level)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, "Portfolio shows high average correlation (-1.00)", result.Alerts[0].Message)

	highPairs := result.Details["high_correlations"].([]HighPair)
	require.Len(t, highPairs, 1)
	assert.Equal(t, "negative", highPairs[0].Type)
	assert.InDelta(t, -1.0, highPairs[0].Correlation, 1e-9)
}

// TestCorrelationAgent_WellDiversified uses orthogonal return cycles so the
// average correlation sits near zero.
func TestCorrelationAgent_WellDiversified(t *testing.T) {
	agent := New(0, zerolog.Nop())

	// Period-2 against period-4: zero correlation over whole cycles.
	fast := repeatPattern([]float64{0.01, -0.01}, 32)
	slow := repeatPattern([]float64{0.01, 0.01, -0.01, -0.01}, 32)
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, fast),
		"BBB": compounded(testStart, 50, slow),
	}))

	assert.Equal(t, 25.0, result.Score)
	assert.Equal(t, domain.RiskLow, result.Level)
	assert.Equal(t, SignalWellDiversified, result.Signal)
	assert.Empty(t, result.Alerts)
	assert.InDelta(t, 0.0, result.Details["average_correlation"].(float64), 1e-6)
	assert.InDelta(t, 100.0, result.Details["diversification_score"].(float64), 1e-4)
}

// TestCorrelationAgent_DetectsIncrease keeps two symbols independent for 60
// days and locks them together for the last 20: the recent window clears the
// historical baseline by more than the margin.
func TestCorrelationAgent_DetectsIncrease(t *testing.T) {
	agent := New(0, zerolog.Nop())

	shared := repeatPattern([]float64{0.02, -0.02}, 20)
	retsA := append(repeatPattern([]float64{0.01, -0.01}, 60), shared...)
	retsB := append(repeatPattern([]float64{0.01, 0.01, -0.01, -0.01}, 60), shared...)

	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, retsA),
		"BBB": compounded(testStart, 50, retsB),
	}))

	assert.Equal(t, 1.0, result.Confidence, "80 observations")

	increases, ok := result.Details["correlation_increases"].([]Increase)
	require.True(t, ok)
	require.Len(t, increases, 1)
	assert.Equal(t, "AAA-BBB", increases[0].Pair)
	assert.InDelta(t, 1.0, increases[0].Recent, 0.01)
	assert.InDelta(t, 0.0, increases[0].Historical, 0.05)

	require.Len(t, result.Alerts, 1)
	alert := result.Alerts[0]
	assert.Equal(t, AlertCorrelationIncrease, alert.Type)
	assert.Equal(t, domain.SeverityMedium, alert.Severity)
	assert.Equal(t, "AAA-BBB", alert.Symbol)
	assert.Contains(t, alert.Message, "AAA-BBB: Correlation increased from")
	assert.InDelta(t, increases[0].Change, alert.Value, 1e-12)

	// The mixed full sample stays under the high-pair threshold.
	assert.Empty(t, result.Details["high_correlations"].([]HighPair))
}

// TestCorrelationAgent_ThreeSymbols checks matrix symmetry and the
// upper-triangle average with one correlated pair among three symbols.
func TestCorrelationAgent_ThreeSymbols(t *testing.T) {
	agent := New(0, zerolog.Nop())

	fast := repeatPattern([]float64{0.01, -0.01}, 32)
	slow := repeatPattern([]float64{0.01, 0.01, -0.01, -0.01}, 32)
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		"AAA": compounded(testStart, 100, fast),
		"BBB": compounded(testStart, 50, slow),
		"CCC": compounded(testStart, 200, fast),
	}))

	matrix, ok := result.Details["correlation_matrix"].(map[string]map[string]float64)
	require.True(t, ok)
	assert.Equal(t, 1.0, matrix["AAA"]["AAA"])
	assert.InDelta(t, 1.0, matrix["AAA"]["CCC"], 1e-9)
	assert.InDelta(t, matrix["AAA"]["CCC"], matrix["CCC"]["AAA"], 1e-15)
	assert.InDelta(t, 0.0, matrix["AAA"]["BBB"], 1e-6)

	// Pairs AAA-BBB (0), AAA-CCC (1), BBB-CCC (0): average one third.
	assert.InDelta(t, 1.0/3.0, result.Details["average_correlation"].(float64), 1e-6)
	assert.Equal(t, domain.RiskLow, result.Level)

	highPairs := result.Details["high_correlations"].([]HighPair)
	require.Len(t, highPairs, 1)
	assert.Equal(t, "AAA-CCC", highPairs[0].Pair)
}

// TestCorrelationAgent_PartialOverlap aligns two histories that share only a
// middle stretch of dates.
func TestCorrelationAgent_PartialOverlap(t *testing.T) {
	agent := New(0, zerolog.Nop())

	rets := repeatPattern([]float64{0.01, -0.01}, 40)
	result := agent.Analyze(context.Background(), inputFor(map[string]domain.PriceHistory{
		// AAA covers days 0..40, BBB days 10..50; shared return dates 11..40.
		"AAA": compounded(testStart, 100, rets),
		"BBB": compounded(testStart.AddDate(0, 0, 10), 50, rets),
	}))

	assert.Equal(t, 30, result.Details["observations"].(int))
	assert.Equal(t, 0.8, result.Confidence)
}

func TestDateReturns(t *testing.T) {
	bars := domain.PriceHistory{
		{Date: testStart, Close: 100},
		{Date: testStart.AddDate(0, 0, 1), Close: 0},
		{Date: testStart.AddDate(0, 0, 2), Close: 50},
		{Date: testStart.AddDate(0, 0, 3), Close: 55},
	}
	series := dateReturns(bars)
	require.Len(t, series, 2, "zero previous close drops the following return")
	assert.InDelta(t, -1.0, series[testStart.AddDate(0, 0, 1).Unix()], 1e-12)
	assert.InDelta(t, 0.1, series[testStart.AddDate(0, 0, 3).Unix()], 1e-12)

	assert.Nil(t, dateReturns(domain.PriceHistory{{Date: testStart, Close: 100}}))
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		avg    float64
		score  float64
		level  domain.RiskLevel
		signal string
	}{
		{avg: 0.85, score: 75, level: domain.RiskHigh, signal: SignalHighCorrelation},
		{avg: -0.85, score: 75, level: domain.RiskHigh, signal: SignalHighCorrelation},
		{avg: 0.7, score: 50, level: domain.RiskMedium, signal: SignalModerateCorrelation},
		{avg: 0.61, score: 50, level: domain.RiskMedium, signal: SignalModerateCorrelation},
		{avg: 0.6, score: 25, level: domain.RiskLow, signal: SignalWellDiversified},
		{avg: 0, score: 25, level: domain.RiskLow, signal: SignalWellDiversified},
	}
	for _, tt := range tests {
		score, level, signal := bandFor(tt.avg)
		assert.Equal(t, tt.score, score, "avg %v", tt.avg)
		assert.Equal(t, tt.level, level, "avg %v", tt.avg)
		assert.Equal(t, tt.signal, signal, "avg %v", tt.avg)
	}
}

func TestObservationConfidence(t *testing.T) {
	assert.Equal(t, 1.0, observationConfidence(60))
	assert.Equal(t, 0.8, observationConfidence(59))
	assert.Equal(t, 0.8, observationConfidence(30))
	assert.Equal(t, 0.6, observationConfidence(29))
	assert.Equal(t, 0.6, observationConfidence(20))
	assert.Equal(t, 0.4, observationConfidence(19))
}
