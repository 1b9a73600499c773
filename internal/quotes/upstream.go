package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPFetcher talks to the brokerage price API. It implements Fetcher and
// returns structured *QuoteError values derived from HTTP status codes, so
// the pipeline's classification never falls back to string matching.
type HTTPFetcher struct {
	baseURL     string
	apiKey      string
	accessToken string
	client      *http.Client
}

// HTTPFetcherConfig configures the brokerage client.
type HTTPFetcherConfig struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	Timeout     time.Duration // transport ceiling; per-call deadlines come from ctx
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("API key and access token are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// quotePayload mirrors the upstream response envelope.
type quotePayload struct {
	Status string `json:"status"`
	Data   map[string]struct {
		LastPrice    float64 `json:"last_price"`
		Volume       int64   `json:"volume"`
		OpenInterest int64   `json:"oi"`
		AveragePrice float64 `json:"average_price"`
		OHLC         *OHLC   `json:"ohlc"`
	} `json:"data"`
	Message string `json:"message"`
}

// FetchQuotes requests full quotes for the given "EXCHANGE:SYMBOL" keys.
func (f *HTTPFetcher) FetchQuotes(ctx context.Context, keys []string) (map[string]Record, error) {
	return f.get(ctx, "/quote", keys)
}

// FetchLTP requests last-traded prices only.
func (f *HTTPFetcher) FetchLTP(ctx context.Context, keys []string) (map[string]Record, error) {
	return f.get(ctx, "/quote/ltp", keys)
}

func (f *HTTPFetcher) get(ctx context.Context, path string, keys []string) (map[string]Record, error) {
	params := url.Values{}
	for _, k := range keys {
		params.Add("i", k)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, newUpstreamError(0, "build request", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+f.apiKey+":"+f.accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newTimeoutError("quote request timed out", err)
		}
		return nil, newUpstreamError(0, "quote request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, newAuthError(resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newRateLimitedError("upstream throttled the request")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, newUpstreamError(resp.StatusCode,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, newMalformedError("undecodable quote payload: " + err.Error())
	}
	if payload.Status != "success" {
		return nil, newUpstreamError(resp.StatusCode, "upstream status "+payload.Status+": "+payload.Message, nil)
	}

	out := make(map[string]Record, len(payload.Data))
	for key, d := range payload.Data {
		out[key] = Record{
			LastPrice:    d.LastPrice,
			Volume:       d.Volume,
			OpenInterest: d.OpenInterest,
			AveragePrice: d.AveragePrice,
			OHLC:         d.OHLC,
		}
	}
	return out, nil
}
