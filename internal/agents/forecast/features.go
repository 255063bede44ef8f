package forecast

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/vigil/internal/domain"
)

// Feature vector layout. SMA5 and SMA20 double as the trend inputs.
const (
	fSMA5 = iota
	fSMA10
	fSMA20
	fMomentum5
	fMomentum10
	fVol5
	fVol20
	fVolumeRatio
	fRSI
	featureCount
)

// featureSet holds the valid feature rows for one symbol in bar order. A row
// is valid when every feature and the next-day target are defined, so the
// first 20 bars (indicator warm-up) and the last bar (no target) never
// contribute.
type featureSet struct {
	rows    [][]float64
	targets []float64
}

// buildFeatures derives the model inputs from a bar series. Undefined values
// (warm-up windows, zero denominators) are tracked as NaN and drop the row.
func buildFeatures(bars domain.PriceHistory) featureSet {
	n := len(bars)
	if n < 22 {
		return featureSet{}
	}

	closes := bars.Closes()
	volumes := bars.Volumes()

	// Index-aligned daily returns, NaN while undefined.
	returns := make([]float64, n)
	returns[0] = math.NaN()
	for i := 1; i < n; i++ {
		if closes[i-1] == 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = closes[i]/closes[i-1] - 1
	}

	sma5 := talib.Sma(closes, 5)
	sma10 := talib.Sma(closes, 10)
	sma20 := talib.Sma(closes, 20)
	volumeSMA := talib.Sma(volumes, 20)

	vol5 := rollingStd(returns, 5)
	vol20 := rollingStd(returns, 20)
	rsi := rollingRSI(closes, 14)

	var fs featureSet
	for i := 20; i < n-1; i++ {
		target := returns[i+1]
		row := []float64{
			sma5[i],
			sma10[i],
			sma20[i],
			momentum(closes, i, 5),
			momentum(closes, i, 10),
			vol5[i],
			vol20[i],
			volumeRatio(volumes[i], volumeSMA[i]),
			rsi[i],
		}
		if math.IsNaN(target) || hasNaN(row) {
			continue
		}
		fs.rows = append(fs.rows, row)
		fs.targets = append(fs.targets, target)
	}
	return fs
}

// rollingStd computes the sample standard deviation over a trailing window,
// NaN until the window is full or while any element is undefined.
func rollingStd(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := window - 1; i < len(xs); i++ {
		w := xs[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = stat.StdDev(w, nil)
	}
	return out
}

// rollingRSI is the moving-average RSI variant: gains and losses are plain
// arithmetic means over the window (not Wilder smoothed) and a zero mean loss
// counts as 1.
func rollingRSI(closes []float64, window int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < window+1 {
		return out
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		}
		if delta < 0 {
			losses[i] = -delta
		}
	}

	for i := window; i < n; i++ {
		gain := stat.Mean(gains[i-window+1:i+1], nil)
		loss := stat.Mean(losses[i-window+1:i+1], nil)
		if loss == 0 {
			loss = 1
		}
		rs := gain / loss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

func momentum(closes []float64, i, lag int) float64 {
	if i < lag || closes[i-lag] == 0 {
		return math.NaN()
	}
	return closes[i]/closes[i-lag] - 1
}

func volumeRatio(volume, sma float64) float64 {
	if sma <= 0 {
		return math.NaN()
	}
	return volume / sma
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
