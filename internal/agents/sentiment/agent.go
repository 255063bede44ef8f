// Package sentiment scores market mood from news headlines.
package sentiment

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

// Sentiment labels applied to mean compound scores
const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
)

// Signal labels emitted by the sentiment agent
const (
	SignalVeryNegative = "VERY_NEGATIVE"
	SignalNegative     = "NEGATIVE"
	SignalNeutral      = "NEUTRAL"
	SignalPositive     = "POSITIVE"
	SignalVeryPositive = "VERY_POSITIVE"
)

// Alert types raised by the sentiment agent
const (
	AlertNegativeSentiment = "NEGATIVE_SENTIMENT"
	AlertPositiveSentiment = "POSITIVE_SENTIMENT"
)

// SymbolSentiment is the per-symbol reading surfaced in Details.
type SymbolSentiment struct {
	Sentiment float64 `json:"sentiment"`
	Label     string  `json:"label"`
	Articles  int     `json:"articles"`
}

// Agent derives a market mood reading from per-symbol headlines.
type Agent struct {
	scorer Scorer
	log    zerolog.Logger
}

// New creates a sentiment agent. A nil scorer falls back to VADER.
func New(scorer Scorer, log zerolog.Logger) *Agent {
	if scorer == nil {
		scorer = VaderScorer{}
	}
	return &Agent{
		scorer: scorer,
		log:    log.With().Str("agent", domain.AgentSentiment).Logger(),
	}
}

// Name implements domain.Agent.
func (a *Agent) Name() string { return domain.AgentSentiment }

// Analyze averages headline polarity per symbol and across the portfolio.
// Symbols with no articles at all are skipped; symbols whose articles carry
// no usable titles stay in the result as neutral with zero articles.
func (a *Agent) Analyze(ctx context.Context, input *domain.AnalysisInput) domain.SignalResult {
	if input == nil || len(input.News) == 0 {
		return a.emptyResult()
	}

	symbols := sortedNewsSymbols(input.News)
	readings := make(map[string]SymbolSentiment)

	for _, symbol := range symbols {
		articles := input.News[symbol]
		if len(articles) == 0 {
			continue
		}

		var scores []float64
		for _, article := range articles {
			if article.Title == "" {
				continue
			}
			scores = append(scores, a.scorer.Compound(article.Title))
		}

		if len(scores) == 0 {
			readings[symbol] = SymbolSentiment{Label: LabelNeutral}
			continue
		}
		mean := stat.Mean(scores, nil)
		readings[symbol] = SymbolSentiment{
			Sentiment: mean,
			Label:     labelFor(mean),
			Articles:  len(scores),
		}
	}

	overall := 0.0
	overallLabel := LabelNeutral
	distribution := map[string]int{"positive": 0, "negative": 0, "neutral": 0}
	if len(readings) > 0 {
		sum := 0.0
		for _, r := range readings {
			sum += r.Sentiment
			switch r.Label {
			case LabelPositive:
				distribution["positive"]++
			case LabelNegative:
				distribution["negative"]++
			default:
				distribution["neutral"]++
			}
		}
		overall = sum / float64(len(readings))
		overallLabel = labelFor(overall)
	}

	alerts := []domain.Alert{}
	for _, symbol := range symbols {
		r, ok := readings[symbol]
		if !ok {
			continue
		}
		switch {
		case r.Sentiment < -0.5:
			severity := domain.SeverityMedium
			if r.Sentiment < -0.7 {
				severity = domain.SeverityHigh
			}
			alerts = append(alerts, domain.Alert{
				Type:     AlertNegativeSentiment,
				Severity: severity,
				Message:  fmt.Sprintf("%s: Strong negative sentiment detected (%.2f)", symbol, r.Sentiment),
				Value:    r.Sentiment,
				Symbol:   symbol,
			})
		case r.Sentiment > 0.5:
			alerts = append(alerts, domain.Alert{
				Type:     AlertPositiveSentiment,
				Severity: domain.SeverityLow,
				Message:  fmt.Sprintf("%s: Strong positive sentiment detected (%.2f)", symbol, r.Sentiment),
				Value:    r.Sentiment,
				Symbol:   symbol,
			})
		}
	}

	signal := signalFor(overallLabel, overall)

	a.log.Debug().
		Str("label", overallLabel).
		Float64("overall", overall).
		Int("symbols", len(readings)).
		Int("alerts", len(alerts)).
		Msg("Sentiment analysis complete")

	return domain.SignalResult{
		Agent:      domain.AgentSentiment,
		Score:      scoreForLabel(overallLabel, overall),
		Level:      levelForSignal(signal),
		Signal:     signal,
		Confidence: confidenceFrom(readings),
		Alerts:     alerts,
		Details: map[string]any{
			"symbols":           readings,
			"overall_sentiment": overall,
			"overall_label":     overallLabel,
			"distribution":      distribution,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func (a *Agent) emptyResult() domain.SignalResult {
	return domain.SignalResult{
		Agent:      domain.AgentSentiment,
		Score:      50,
		Level:      domain.RiskUnknown,
		Signal:     domain.SignalNoData,
		Confidence: 0,
		Alerts:     []domain.Alert{},
		Details: map[string]any{
			"symbols":           map[string]SymbolSentiment{},
			"overall_sentiment": 0.0,
			"overall_label":     LabelNeutral,
			"distribution":      map[string]int{"positive": 0, "negative": 0, "neutral": 0},
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func labelFor(score float64) string {
	switch {
	case score > 0.2:
		return LabelPositive
	case score < -0.2:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// signalFor grades the overall label by intensity.
func signalFor(label string, overall float64) string {
	switch label {
	case LabelNegative:
		if overall < -0.5 {
			return SignalVeryNegative
		}
		return SignalNegative
	case LabelPositive:
		if overall > 0.5 {
			return SignalVeryPositive
		}
		return SignalPositive
	default:
		return SignalNeutral
	}
}

func levelForSignal(signal string) domain.RiskLevel {
	switch signal {
	case SignalVeryNegative:
		return domain.RiskHigh
	case SignalNegative:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// scoreForLabel carries the engine's sentiment weighting: negative mood adds
// to unified risk, positive mood subtracts.
func scoreForLabel(label string, overall float64) float64 {
	switch label {
	case LabelNegative:
		return domain.ClampScore(50 + math.Abs(overall)*50)
	case LabelPositive:
		return domain.ClampScore(50 - overall*50)
	default:
		return 50
	}
}

// confidenceFrom scales with article coverage, saturating at ten articles per
// symbol. Symbols kept with zero scorable articles still dilute it.
func confidenceFrom(readings map[string]SymbolSentiment) float64 {
	if len(readings) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range readings {
		total += float64(r.Articles)
	}
	return math.Min(1, total/float64(len(readings))/10)
}

func sortedNewsSymbols(news map[string][]domain.NewsItem) []string {
	symbols := make([]string, 0, len(news))
	for s := range news {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
