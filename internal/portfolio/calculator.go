// Package portfolio derives portfolio-level performance metrics from the
// date-aligned daily returns of all monitored symbols.
package portfolio

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/vigil/internal/domain"
)

const tradingDays = 252

// Calculator computes weighted portfolio metrics.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a metrics calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{log: log.With().Str("component", "portfolio-metrics").Logger()}
}

// Metrics computes portfolio metrics over the dates shared by every symbol
// history. A nil weights map means equal weighting; symbols missing from an
// explicit map weigh zero. Returns nil when fewer than two aligned
// observations exist, including when any symbol has no computable returns.
func (c *Calculator) Metrics(market *domain.MarketData, weights map[string]float64) *domain.PortfolioMetrics {
	if market == nil || len(market.History) == 0 {
		return nil
	}

	symbols, rows := alignedReturns(market.History)
	if len(rows) < 2 {
		return nil
	}

	w := make([]float64, len(symbols))
	if weights == nil {
		for i := range w {
			w[i] = 1 / float64(len(symbols))
		}
	} else {
		for i, symbol := range symbols {
			w[i] = weights[symbol]
		}
	}

	portfolioReturns := make([]float64, len(rows))
	for i, row := range rows {
		sum := 0.0
		for j, r := range row {
			sum += r * w[j]
		}
		portfolioReturns[i] = sum
	}

	mean := stat.Mean(portfolioReturns, nil)
	sd := stat.StdDev(portfolioReturns, nil)

	// Equity curve with running peak for drawdowns.
	equity := 1.0
	peak := 0.0
	maxDrawdown := 0.0
	for _, r := range portfolioReturns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := equity/peak - 1; dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = equity/peak - 1
	}

	sharpe := 0.0
	if sd > 0 {
		sharpe = mean / sd * math.Sqrt(tradingDays)
	}
	volatility := sd * math.Sqrt(tradingDays)

	c.log.Debug().
		Int("observations", len(portfolioReturns)).
		Float64("total_return", equity-1).
		Float64("volatility", volatility).
		Msg("Portfolio metrics computed")

	return &domain.PortfolioMetrics{
		TotalReturn:      equity - 1,
		AnnualizedReturn: mean * tradingDays,
		Volatility:       volatility,
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDrawdown,
		CurrentDrawdown:  currentDrawdown,
		Observations:     len(portfolioReturns),
	}
}

// alignedReturns inner-joins daily returns on shared dates, one row per date
// in ascending order with columns in sorted-symbol order. A symbol without
// any computable return empties the join.
func alignedReturns(history map[string]domain.PriceHistory) ([]string, [][]float64) {
	perSymbol := make(map[string]map[int64]float64, len(history))
	symbols := make([]string, 0, len(history))
	for symbol, bars := range history {
		series := dateReturns(bars)
		if len(series) == 0 {
			return nil, nil
		}
		perSymbol[symbol] = series
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

	rows := make([][]float64, len(shared))
	for i, date := range shared {
		row := make([]float64, len(symbols))
		for j, symbol := range symbols {
			row[j] = perSymbol[symbol][date]
		}
		rows[i] = row
	}
	return symbols, rows
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
