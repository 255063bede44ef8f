package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevelFromScore_Buckets(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelFromScore(0))
	assert.Equal(t, RiskLow, RiskLevelFromScore(19.9))
	assert.Equal(t, RiskMedium, RiskLevelFromScore(35))
	assert.Equal(t, RiskHigh, RiskLevelFromScore(65))
	assert.Equal(t, RiskCritical, RiskLevelFromScore(95))
	assert.Equal(t, RiskCritical, RiskLevelFromScore(100))
}

func TestRiskLevelFromScore_BoundariesLandUpward(t *testing.T) {
	// Exact boundary values belong to the higher band
	assert.Equal(t, RiskMedium, RiskLevelFromScore(20), "score 20 should be MEDIUM, not LOW")
	assert.Equal(t, RiskHigh, RiskLevelFromScore(50), "score 50 should be HIGH, not MEDIUM")
	assert.Equal(t, RiskCritical, RiskLevelFromScore(80), "score 80 should be CRITICAL, not HIGH")
}

func TestSeverityRank_Ordering(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Equal(t, 0, SeverityRank(Severity("BOGUS")), "unknown severity should rank below LOW")
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-5))
	assert.Equal(t, 100.0, ClampScore(140))
	assert.Equal(t, 42.5, ClampScore(42.5))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.1))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.8, ClampConfidence(0.8))
}

func TestPriceHistoryReturns(t *testing.T) {
	history := PriceHistory{
		{Close: 100},
		{Close: 110},
		{Close: 99},
	}

	returns := history.Returns()

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestPriceHistoryReturns_SkipsZeroPreviousClose(t *testing.T) {
	history := PriceHistory{
		{Close: 0},
		{Close: 110},
		{Close: 121},
	}

	returns := history.Returns()

	assert.Len(t, returns, 1, "bar following a zero close should be dropped")
	assert.InDelta(t, 0.10, returns[0], 1e-9)
}

func TestPriceHistoryReturns_TooShort(t *testing.T) {
	assert.Nil(t, PriceHistory{{Close: 100}}.Returns())
	assert.Nil(t, PriceHistory{}.Returns())
}
