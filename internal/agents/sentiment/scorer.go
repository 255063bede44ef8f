package sentiment

import (
	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
)

// Scorer produces a compound polarity in [-1, 1] for a piece of text.
type Scorer interface {
	Compound(text string) float64
}

// VaderScorer scores text against the VADER lexicon. It is stateless and safe
// for concurrent use.
type VaderScorer struct{}

// Compound implements Scorer.
func (VaderScorer) Compound(text string) float64 {
	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	return sentitext.PolarityScore(parsed).Compound
}
