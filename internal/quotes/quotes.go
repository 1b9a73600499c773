package quotes

import (
	"context"
)

// OHLC is the day's open/high/low/close band for an instrument.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Record is the normalized quote shape returned by every tier of the
// pipeline. Volume, open interest, average price and OHLC are only
// populated on the full-quote path; the LTP path fills LastPrice alone.
// Synthetic marks records fabricated by the fallback generator.
type Record struct {
	LastPrice    float64 `json:"last_price"`
	Volume       int64   `json:"volume,omitempty"`
	OpenInterest int64   `json:"oi,omitempty"`
	AveragePrice float64 `json:"average_price,omitempty"`
	OHLC         *OHLC   `json:"ohlc,omitempty"`
	Synthetic    bool    `json:"synthetic"`
}

// Fetcher is the single upstream dependency: one synchronous network call
// that returns quotes for a list of "EXCHANGE:SYMBOL" keys. Implementations
// must return structured *QuoteError values so classification does not fall
// back to string matching.
type Fetcher interface {
	FetchQuotes(ctx context.Context, keys []string) (map[string]Record, error)
	FetchLTP(ctx context.Context, keys []string) (map[string]Record, error)
}

// checkQuality rejects technically-successful but semantically-empty
// upstream payloads: an empty map, or one where every instrument's price
// is zero or missing.
func checkQuality(result map[string]Record) error {
	if len(result) == 0 {
		return newMalformedError("upstream returned empty payload")
	}
	for _, rec := range result {
		if rec.LastPrice > 0 {
			return nil
		}
	}
	return newMalformedError("upstream returned all-zero prices")
}
