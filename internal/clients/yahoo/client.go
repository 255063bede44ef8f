// Package yahoo provides a native Go Yahoo Finance client for historical
// bars, current quotes and symbol news.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/clientdata"
	"github.com/aristath/vigil/internal/domain"
)

const (
	defaultChartURL  = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultSearchURL = "https://query1.finance.yahoo.com/v1/finance/search"

	// Yahoo rejects requests without a browser user agent
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	defaultMaxRetries = 3
	defaultRetryBase  = 1 * time.Second
	historyCacheTTL   = 5 * time.Minute
	newsCacheTTL      = 15 * time.Minute
)

// validPeriods maps accepted period strings to Yahoo range parameters
var validPeriods = map[string]string{
	"1mo": "1mo",
	"3mo": "3mo",
	"6mo": "6mo",
	"1y":  "1y",
	"2y":  "2y",
	"5y":  "5y",
}

// NativeClient fetches market data directly from Yahoo Finance endpoints.
// Responses are cached in the client data repository so repeated analysis
// runs within the TTL never hit the network.
type NativeClient struct {
	chartURL   string
	searchURL  string
	httpClient *http.Client
	cache      *clientdata.Repository // May be nil (no caching)
	maxRetries int
	retryBase  time.Duration
	log        zerolog.Logger
}

// NewNativeClient creates a new Yahoo Finance client.
// cache may be nil to disable response caching.
func NewNativeClient(cache *clientdata.Repository, log zerolog.Logger) *NativeClient {
	return &NativeClient{
		chartURL:  defaultChartURL,
		searchURL: defaultSearchURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache:      cache,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		log:        log.With().Str("client", "yahoo").Logger(),
	}
}

// FetchHistory returns daily bars for the symbols over the period.
// Symbols that fail all retries are omitted; when every symbol fails the
// stale cache is consulted before giving up with a FetchError.
func (c *NativeClient) FetchHistory(ctx context.Context, symbols []string, period string) (*domain.MarketData, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}
	yahooRange, ok := validPeriods[period]
	if !ok {
		return nil, fmt.Errorf("invalid period %q (valid: 1mo, 3mo, 6mo, 1y, 2y, 5y)", period)
	}

	cacheKey := historyCacheKey(symbols, period)
	if c.cache != nil {
		var cached domain.MarketData
		if found, err := c.cache.GetIfFresh(cacheKey, &cached); err != nil {
			c.log.Warn().Err(err).Msg("Cache read failed, fetching from upstream")
		} else if found {
			c.log.Debug().Str("key", cacheKey).Msg("Serving market data from cache")
			return &cached, nil
		}
	}

	data := &domain.MarketData{
		Symbols:   append([]string(nil), symbols...),
		Period:    period,
		History:   make(map[string]domain.PriceHistory, len(symbols)),
		FetchedAt: time.Now().UTC(),
	}

	var lastErr error
	for _, symbol := range symbols {
		history, err := c.fetchChart(ctx, symbol, yahooRange)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch history for symbol")
			lastErr = err
			continue
		}
		data.History[symbol] = history
	}

	if len(data.History) == 0 {
		// Last known good: serve stale cache rather than nothing
		if c.cache != nil {
			var stale domain.MarketData
			if found, err := c.cache.Get(cacheKey, &stale); err == nil && found {
				c.log.Warn().Str("key", cacheKey).Msg("Upstream unavailable, serving stale cached market data")
				return &stale, nil
			}
		}
		return nil, &FetchError{Symbols: symbols, Err: lastErr}
	}

	if c.cache != nil {
		if err := c.cache.Store(cacheKey, data, historyCacheTTL); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache market data")
		}
	}

	c.log.Info().
		Int("requested", len(symbols)).
		Int("fetched", len(data.History)).
		Str("period", period).
		Msg("Market data fetched")

	return data, nil
}

// fetchChart downloads one symbol's daily bars with retry and backoff
func (c *NativeClient) fetchChart(ctx context.Context, symbol, yahooRange string) (domain.PriceHistory, error) {
	endpoint := fmt.Sprintf("%s/%s?range=%s&interval=1d", c.chartURL, url.PathEscape(symbol), yahooRange)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, backoffDelay(c.retryBase, attempt)); err != nil {
				return nil, err
			}
		}

		result, err := c.getChart(ctx, endpoint)
		if err != nil {
			lastErr = err
			c.log.Debug().
				Err(err).
				Str("symbol", symbol).
				Int("attempt", attempt).
				Msg("Chart request failed, will retry")
			continue
		}

		history := parseBars(result)
		if len(history) == 0 {
			lastErr = fmt.Errorf("no usable bars for %s", symbol)
			continue
		}
		return history, nil
	}

	return nil, fmt.Errorf("fetch %s after %d attempts: %w", symbol, c.maxRetries, lastErr)
}

// backoffDelay computes the delay before the given attempt (attempt >= 2):
// base doubling per attempt plus a 10% per-attempt stagger.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	prior := attempt - 1
	delay := base * (1 << (prior - 1))
	stagger := time.Duration(float64(base) * 0.1 * float64(prior))
	return delay + stagger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *NativeClient) getChart(ctx context.Context, endpoint string) (*chartResult, error) {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, parsed.Chart.Error
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result")
	}

	return &parsed.Chart.Result[0], nil
}

// get performs a single GET request and returns the response body
func (c *NativeClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// parseBars converts a chart result into a price history, dropping bars with
// missing closes (Yahoo returns nulls for halted days)
func parseBars(result *chartResult) domain.PriceHistory {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	history := make(domain.PriceHistory, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		point := domain.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			point.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			point.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			point.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			point.Volume = *quote.Volume[i]
		}
		history = append(history, point)
	}

	return history
}

// FetchQuotes returns current price snapshots for the symbols.
// Symbols that fail are skipped; an error is returned only when all fail.
func (c *NativeClient) FetchQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	quotes := make([]domain.Quote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		endpoint := fmt.Sprintf("%s/%s?range=1d&interval=1d", c.chartURL, url.PathEscape(symbol))
		result, err := c.getChart(ctx, endpoint)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
			lastErr = err
			continue
		}
		quotes = append(quotes, domain.Quote{
			Symbol:   symbol,
			Price:    result.Meta.RegularMarketPrice,
			Currency: result.Meta.Currency,
			AsOf:     time.Now().UTC(),
		})
	}

	if len(quotes) == 0 {
		return nil, &FetchError{Symbols: symbols, Err: lastErr}
	}

	return quotes, nil
}

// FetchNews returns up to limit recent headlines per symbol. Best effort:
// a symbol whose lookup fails is absent from the map and no error is returned.
func (c *NativeClient) FetchNews(ctx context.Context, symbols []string, limit int) (map[string][]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 10
	}

	news := make(map[string][]domain.NewsItem, len(symbols))
	for _, symbol := range symbols {
		cacheKey := fmt.Sprintf("news:%s:%d", symbol, limit)
		if c.cache != nil {
			var cached []domain.NewsItem
			if found, err := c.cache.GetIfFresh(cacheKey, &cached); err == nil && found {
				news[symbol] = cached
				continue
			}
		}

		items, err := c.fetchSymbolNews(ctx, symbol, limit)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch news for symbol")
			continue
		}
		if len(items) == 0 {
			continue
		}

		news[symbol] = items
		if c.cache != nil {
			if err := c.cache.Store(cacheKey, items, newsCacheTTL); err != nil {
				c.log.Warn().Err(err).Msg("Failed to cache news")
			}
		}
	}

	return news, nil
}

func (c *NativeClient) fetchSymbolNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	endpoint := fmt.Sprintf("%s?q=%s&newsCount=%d&quotesCount=0", c.searchURL, url.QueryEscape(symbol), limit)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]domain.NewsItem, 0, len(parsed.News))
	for _, n := range parsed.News {
		if n.Title == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			Symbol:      symbol,
			Title:       n.Title,
			Publisher:   n.Publisher,
			Link:        n.Link,
			PublishedAt: time.Unix(n.ProviderPublishTime, 0).UTC(),
		})
		if len(items) >= limit {
			break
		}
	}

	return items, nil
}

// historyCacheKey builds a deterministic cache key from the symbol set and period
func historyCacheKey(symbols []string, period string) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return "history:" + strings.Join(sorted, ",") + ":" + period
}
