// Package advisory turns the four signal results into ranked actions,
// recommendations and a readable summary. It never touches market data
// directly; everything it says is derived from what the other agents found.
package advisory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/agents/forecast"
	"github.com/aristath/vigil/internal/agents/risk"
	"github.com/aristath/vigil/internal/agents/sentiment"
	"github.com/aristath/vigil/internal/domain"
)

// Overall portfolio recommendations, most urgent first.
const (
	RecommendReduceRiskImmediately = "REDUCE_RISK_IMMEDIATELY"
	RecommendDefensiveStance       = "DEFENSIVE_STANCE"
	RecommendMonitorClosely        = "MONITOR_CLOSELY"
	RecommendCautiousApproach      = "CAUTIOUS_APPROACH"
	RecommendFavorableConditions   = "FAVORABLE_CONDITIONS"
	RecommendMaintainStrategy      = "MAINTAIN_CURRENT_STRATEGY"
)

// Priority action identifiers.
const (
	ActionReduceExposure         = "REDUCE_EXPOSURE"
	ActionDefensivePositioning   = "DEFENSIVE_POSITIONING"
	ActionImproveDiversification = "IMPROVE_DIVERSIFICATION"
	ActionRiskReview             = "RISK_REVIEW"
)

// Recommendation categories.
const (
	CategoryRiskManagement  = "RISK_MANAGEMENT"
	CategoryMarketOutlook   = "MARKET_OUTLOOK"
	CategoryDiversification = "DIVERSIFICATION"
)

// Agent produces the fused advisory view.
type Agent struct {
	log zerolog.Logger
}

// New creates an advisory agent.
func New(log zerolog.Logger) *Agent {
	return &Agent{log: log.With().Str("agent", domain.AgentAdvisory).Logger()}
}

// Name returns the agent identifier.
func (a *Agent) Name() string { return domain.AgentAdvisory }

// Advise combines the four base signals into an advisory. Missing or failed
// inputs are safe: a zero-value SignalResult contributes nothing beyond the
// defaults.
func (a *Agent) Advise(riskResult, forecastResult, sentimentResult, correlationResult domain.SignalResult) domain.AdvisoryResult {
	riskLevel := riskResult.Level
	marketSentiment := stringDetail(forecastResult.Details, "market_sentiment", forecast.SentimentUnknown)
	sentimentLabel := stringDetail(sentimentResult.Details, "overall_label", sentiment.LabelNeutral)
	avgCorrelation := floatDetail(correlationResult.Details, "average_correlation")
	diversification := floatDetail(correlationResult.Details, "diversification_score")

	actions := []domain.PriorityAction{}
	recommendations := []domain.Recommendation{}
	riskFactors := []string{}

	if riskLevel == domain.RiskHigh || riskLevel == domain.RiskCritical {
		riskFactors = append(riskFactors, "High portfolio volatility detected")
		actions = append(actions, domain.PriorityAction{
			Action:   ActionReduceExposure,
			Priority: domain.SeverityHigh,
			Reason:   fmt.Sprintf("Risk level is %s", riskLevel),
			Details:  "Consider reducing position sizes or taking profits on volatile assets",
		})
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryRiskManagement,
			Recommendation: "Reduce overall portfolio exposure",
			Rationale:      fmt.Sprintf("Current risk score (%.1f) indicates elevated volatility", riskResult.Score),
			Urgency:        domain.SeverityHigh,
		})
	}

	switch {
	case marketSentiment == forecast.SignalBearish && sentimentLabel == sentiment.LabelNegative:
		riskFactors = append(riskFactors, "Bearish forecast aligned with negative sentiment")
		actions = append(actions, domain.PriorityAction{
			Action:   ActionDefensivePositioning,
			Priority: domain.SeverityHigh,
			Reason:   "Both technical and sentiment indicators are negative",
			Details:  "Consider defensive sectors or hedging strategies",
		})
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryMarketOutlook,
			Recommendation: "Adopt defensive positioning",
			Rationale:      "Technical forecast and news sentiment both indicate downward pressure",
			Urgency:        domain.SeverityHigh,
		})
	case marketSentiment == forecast.SignalBullish && sentimentLabel == sentiment.LabelPositive:
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryMarketOutlook,
			Recommendation: "Favorable conditions for growth positions",
			Rationale:      "Technical forecast and news sentiment both indicate upward momentum",
			Urgency:        domain.SeverityLow,
		})
	case marketSentiment != sentimentLabel:
		riskFactors = append(riskFactors, "Divergence between technical and sentiment signals")
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryMarketOutlook,
			Recommendation: "Exercise caution - mixed signals detected",
			Rationale:      fmt.Sprintf("Technical forecast (%s) diverges from sentiment (%s)", marketSentiment, sentimentLabel),
			Urgency:        domain.SeverityMedium,
		})
	}

	if correlationResult.Level == domain.RiskHigh {
		riskFactors = append(riskFactors, "High correlation reduces diversification benefit")
		actions = append(actions, domain.PriorityAction{
			Action:   ActionImproveDiversification,
			Priority: domain.SeverityMedium,
			Reason:   fmt.Sprintf("Average correlation is %.2f", avgCorrelation),
			Details:  "Add uncorrelated assets or reduce exposure to correlated positions",
		})
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryDiversification,
			Recommendation: "Improve portfolio diversification",
			Rationale:      fmt.Sprintf("Current diversification score (%.1f/100) is low", diversification),
			Urgency:        domain.SeverityMedium,
		})
	} else if diversification > 70 {
		recommendations = append(recommendations, domain.Recommendation{
			Category:       CategoryDiversification,
			Recommendation: "Portfolio shows good diversification",
			Rationale:      fmt.Sprintf("Diversification score (%.1f/100) indicates low correlation risk", diversification),
			Urgency:        domain.SeverityLow,
		})
	}

	// Volatility and negative press landing together outrank everything else.
	if hasAlertType(riskResult.Alerts, risk.AlertHighVolatility, risk.AlertVolatilitySpike) &&
		hasAlertType(sentimentResult.Alerts, sentiment.AlertNegativeSentiment) {
		actions = append(actions, domain.PriorityAction{
			Action:   ActionRiskReview,
			Priority: domain.SeverityCritical,
			Reason:   "Combination of high volatility and negative sentiment",
			Details:  "Immediate review of portfolio risk exposure recommended",
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return domain.SeverityRank(actions[i].Priority) > domain.SeverityRank(actions[j].Priority)
	})

	result := domain.AdvisoryResult{
		OverallRecommendation: overallRecommendation(riskLevel, marketSentiment, sentimentLabel),
		PriorityActions:       actions,
		Recommendations:       recommendations,
		RiskFactors:           riskFactors,
		Confidence: meanPositive(
			riskResult.Confidence,
			forecastResult.Confidence,
			sentimentResult.Confidence,
			correlationResult.Confidence,
		),
		Summary:     summarize(riskLevel, marketSentiment, sentimentLabel, diversification),
		GeneratedAt: time.Now().UTC(),
	}

	a.log.Debug().
		Str("overall", result.OverallRecommendation).
		Int("actions", len(actions)).
		Int("recommendations", len(recommendations)).
		Float64("confidence", result.Confidence).
		Msg("Advisory generated")

	return result
}

// overallRecommendation is an ordered decision table; the first matching row
// wins.
func overallRecommendation(riskLevel domain.RiskLevel, marketSentiment, sentimentLabel string) string {
	bearish := marketSentiment == forecast.SignalBearish
	negative := sentimentLabel == sentiment.LabelNegative
	switch {
	case riskLevel == domain.RiskCritical:
		return RecommendReduceRiskImmediately
	case riskLevel == domain.RiskHigh && (bearish || negative):
		return RecommendDefensiveStance
	case riskLevel == domain.RiskHigh:
		return RecommendMonitorClosely
	case riskLevel == domain.RiskMedium && bearish && negative:
		return RecommendCautiousApproach
	case riskLevel == domain.RiskLow && marketSentiment == forecast.SignalBullish && sentimentLabel == sentiment.LabelPositive:
		return RecommendFavorableConditions
	default:
		return RecommendMaintainStrategy
	}
}

func summarize(riskLevel domain.RiskLevel, marketSentiment, sentimentLabel string, diversification float64) string {
	parts := make([]string, 0, 3)

	if riskLevel == domain.RiskHigh || riskLevel == domain.RiskCritical {
		parts = append(parts, fmt.Sprintf("Portfolio is experiencing %s volatility.", strings.ToLower(string(riskLevel))))
	} else {
		parts = append(parts, fmt.Sprintf("Portfolio risk is currently %s.", strings.ToLower(string(riskLevel))))
	}

	switch {
	case marketSentiment == forecast.SignalBearish && sentimentLabel == sentiment.LabelNegative:
		parts = append(parts, "Both technical and sentiment indicators suggest downward pressure.")
	case marketSentiment == forecast.SignalBullish && sentimentLabel == sentiment.LabelPositive:
		parts = append(parts, "Both technical and sentiment indicators suggest positive momentum.")
	default:
		parts = append(parts, fmt.Sprintf("Technical outlook is %s while sentiment is %s.", strings.ToLower(marketSentiment), strings.ToLower(sentimentLabel)))
	}

	if diversification > 70 {
		parts = append(parts, "Portfolio shows good diversification.")
	} else if diversification < 40 {
		parts = append(parts, "Portfolio diversification could be improved.")
	}

	return strings.Join(parts, " ")
}

// meanPositive averages only informative confidences; an agent reporting zero
// had nothing to stand on and should not drag the blend down.
func meanPositive(confidences ...float64) float64 {
	sum := 0.0
	count := 0
	for _, c := range confidences {
		if c > 0 {
			sum += c
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func hasAlertType(alerts []domain.Alert, types ...string) bool {
	for _, alert := range alerts {
		for _, t := range types {
			if alert.Type == t {
				return true
			}
		}
	}
	return false
}

func stringDetail(details map[string]any, key, fallback string) string {
	if v, ok := details[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatDetail(details map[string]any, key string) float64 {
	if v, ok := details[key].(float64); ok {
		return v
	}
	return 0
}
