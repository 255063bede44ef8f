package yahoo

import "fmt"

// FetchError reports a market data fetch failure for a symbol batch.
// Callers branch on it with errors.As to distinguish upstream failures
// from internal errors.
type FetchError struct {
	Symbols []string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("market data fetch failed for %v: %v", e.Symbols, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// chartResponse mirrors the Yahoo Finance v8 chart payload (the parts we read)
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// searchResponse mirrors the Yahoo Finance search payload (news section only)
type searchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}
