package domain

import "context"

// Agent is the contract every signal agent implements.
// Analyze must never panic across the boundary on bad input; agents degrade to
// a NO_DATA shaped result instead. The engine still guards with recover.
type Agent interface {
	Name() string
	Analyze(ctx context.Context, input *AnalysisInput) SignalResult
}

// DataSupplier abstracts the market data source consumed by the engine.
// Implementations are expected to be safe for concurrent use.
type DataSupplier interface {
	// FetchHistory returns daily bars for the symbols over the period.
	// Symbols that could not be fetched are omitted from the result; an error
	// is returned only when no symbol could be fetched at all.
	FetchHistory(ctx context.Context, symbols []string, period string) (*MarketData, error)

	// FetchNews returns up to limit recent headlines per symbol. Best effort;
	// symbols without news are simply absent from the map.
	FetchNews(ctx context.Context, symbols []string, limit int) (map[string][]NewsItem, error)

	// FetchQuotes returns current price snapshots for the symbols.
	FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error)
}
