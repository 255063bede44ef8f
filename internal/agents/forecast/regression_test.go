package forecast

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFitOLS_RecoversLinearModel generates targets from a known linear rule
// with no noise; the fit must reproduce predictions exactly.
func TestFitOLS_RecoversLinearModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	linear := func(row []float64) float64 {
		return 0.002 + 0.5*row[0] - 0.3*row[3] + 0.1*row[8]
	}

	rows := make([][]float64, 30)
	targets := make([]float64, 30)
	for i := range rows {
		row := make([]float64, featureCount)
		for j := range row {
			row[j] = rng.Float64()*2 - 1
		}
		rows[i] = row
		targets[i] = linear(row)
	}

	coefs, err := fitOLS(rows, targets)
	require.NoError(t, err)
	require.Len(t, coefs, featureCount+1)

	fresh := make([]float64, featureCount)
	for j := range fresh {
		fresh[j] = rng.Float64()*2 - 1
	}
	assert.InDelta(t, linear(fresh), predict(coefs, fresh), 1e-8)
}

func TestFitOLS_NoRows(t *testing.T) {
	_, err := fitOLS(nil, nil)
	assert.Error(t, err)
}

func TestPredict(t *testing.T) {
	coefs := make([]float64, featureCount+1)
	coefs[0] = 0.5
	coefs[1] = 2.0

	row := make([]float64, featureCount)
	row[0] = 3.0

	assert.InDelta(t, 6.5, predict(coefs, row), 1e-12)
}
