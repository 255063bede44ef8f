package domain

import "time"

// PricePoint is a single daily bar
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceHistory is a daily bar series in ascending date order
type PriceHistory []PricePoint

// Closes returns the close price series
func (h PriceHistory) Closes() []float64 {
	closes := make([]float64, len(h))
	for i, p := range h {
		closes[i] = p.Close
	}
	return closes
}

// Volumes returns the volume series
func (h PriceHistory) Volumes() []float64 {
	volumes := make([]float64, len(h))
	for i, p := range h {
		volumes[i] = p.Volume
	}
	return volumes
}

// Returns computes simple daily returns from the close series.
// The result has len(h)-1 entries; bars with a zero previous close are skipped.
func (h PriceHistory) Returns() []float64 {
	if len(h) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		prev := h[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, h[i].Close/prev-1)
	}
	return returns
}

// MarketData is the shared snapshot one analysis run operates on
type MarketData struct {
	Symbols   []string                `json:"symbols"`
	Period    string                  `json:"period"`
	History   map[string]PriceHistory `json:"history"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// NewsItem is a single headline attributed to a symbol
type NewsItem struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Quote is a current price snapshot for a symbol
type Quote struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Currency string    `json:"currency,omitempty"`
	AsOf     time.Time `json:"as_of"`
}

// AnalysisInput bundles everything agents may consume during one run
type AnalysisInput struct {
	Market *MarketData
	News   map[string][]NewsItem
}
