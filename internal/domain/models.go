// Package domain provides core domain models and types.
package domain

import (
	"math"
	"time"
)

// RiskLevel represents a categorical risk band derived from a 0-100 score
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	// RiskUnknown marks a signal that could not be computed from the input
	RiskUnknown RiskLevel = "UNKNOWN"
)

// RiskLevelFromScore maps a 0-100 score to its risk band.
// Boundaries land upward: exactly 20 is MEDIUM, 50 is HIGH, 80 is CRITICAL.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score < 20:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Severity represents alert severity
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityRank returns the sort rank for a severity (CRITICAL highest).
// Unknown severities rank below LOW so they sink to the end of sorted output.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Agent names used as SignalResult keys and alert sources
const (
	AgentRisk        = "risk"
	AgentForecast    = "forecast"
	AgentSentiment   = "sentiment"
	AgentCorrelation = "correlation"
	AgentAdvisory    = "advisory"
)

// SignalNoData is the shared signal label for an agent that had no usable input
const SignalNoData = "NO_DATA"

// Alert represents a single finding raised by an agent.
// Symbol is set for symbol-scoped alerts, Source is stamped by the engine.
type Alert struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Value    float64  `json:"value"`
	Symbol   string   `json:"symbol,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// SignalResult is the common result schema every agent emits
type SignalResult struct {
	Agent       string         `json:"agent"`
	Score       float64        `json:"score"`      // 0-100
	Level       RiskLevel      `json:"level"`      // Band derived from Score
	Signal      string         `json:"signal"`     // Agent-specific categorical label
	Confidence  float64        `json:"confidence"` // 0-1
	Alerts      []Alert        `json:"alerts"`
	Details     map[string]any `json:"details,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Err         string         `json:"error,omitempty"` // Set when the agent failed
}

// PriorityAction is a ranked action item produced by the advisory agent
type PriorityAction struct {
	Action   string   `json:"action"`
	Priority Severity `json:"priority"`
	Reason   string   `json:"reason"`
	Details  string   `json:"details,omitempty"`
}

// Recommendation is a categorized suggestion produced by the advisory agent
type Recommendation struct {
	Category       string   `json:"category"`
	Recommendation string   `json:"recommendation"`
	Rationale      string   `json:"rationale"`
	Urgency        Severity `json:"urgency"`
}

// AdvisoryResult is the fused guidance derived from all four signals
type AdvisoryResult struct {
	OverallRecommendation string           `json:"overall_recommendation"`
	PriorityActions       []PriorityAction `json:"priority_actions"`
	Recommendations       []Recommendation `json:"recommendations"`
	RiskFactors           []string         `json:"risk_factors"`
	Confidence            float64          `json:"confidence"`
	Summary               string           `json:"summary"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// PortfolioMetrics holds equal-weight portfolio statistics for one run
type PortfolioMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	Observations     int     `json:"observations"`
}

// UnifiedSummary is the output of one full analysis run
type UnifiedSummary struct {
	RunID            string                  `json:"run_id"`
	GeneratedAt      time.Time               `json:"generated_at"`
	Symbols          []string                `json:"symbols"`
	Period           string                  `json:"period"`
	UnifiedScore     float64                 `json:"unified_score"`
	UnifiedLevel     RiskLevel               `json:"unified_level"`
	Signals          map[string]SignalResult `json:"signals"`
	Advisory         AdvisoryResult          `json:"advisory"`
	Alerts           []Alert                 `json:"alerts"`
	Quotes           []Quote                 `json:"quotes,omitempty"`
	PortfolioMetrics *PortfolioMetrics       `json:"portfolio_metrics,omitempty"`
	DurationMS       int64                   `json:"duration_ms"`
}

// ClampScore bounds a score to [0, 100]
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Min(100, math.Max(0, score))
}

// ClampConfidence bounds a confidence to [0, 1]
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Min(1, math.Max(0, c))
}
