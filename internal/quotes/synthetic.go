package quotes

import (
	"strings"
)

// indexAnchors maps well-known index trading symbols to approximate
// canonical price levels. Synthetic output anchored here keeps downstream
// analytics in a plausible range during upstream outages.
var indexAnchors = map[string]float64{
	"NIFTY 50":          22500,
	"NIFTY BANK":        48000,
	"BANKNIFTY":         48000,
	"FINNIFTY":          21500,
	"NIFTY FIN SERVICE": 21500,
	"MIDCPNIFTY":        12000,
	"SENSEX":            74000,
}

// defaultAnchor is used for any instrument without a known anchor.
const defaultAnchor = 1000.0

// anchorFor resolves the price anchor for an "EXCHANGE:SYMBOL" key.
func anchorFor(key string) float64 {
	symbol := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		symbol = key[i+1:]
	}
	if price, ok := indexAnchors[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return price
	}
	return defaultAnchor
}

// syntheticLTP fabricates a deterministic LTP-shaped record per key.
func syntheticLTP(keys []string) map[string]Record {
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		out[k] = Record{LastPrice: anchorFor(k), Synthetic: true}
	}
	return out
}

// syntheticQuote fabricates fully-populated quote-shaped records: a
// derived high/low/open/close band around the anchor and plausible
// positive volume and open interest. Output is deterministic per key.
func syntheticQuote(keys []string) map[string]Record {
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		price := anchorFor(k)
		out[k] = Record{
			LastPrice:    price,
			Volume:       int64(price * 10),
			OpenInterest: int64(price * 5),
			AveragePrice: price * 0.999,
			OHLC: &OHLC{
				Open:  price * 0.998,
				High:  price * 1.005,
				Low:   price * 0.995,
				Close: price * 0.999,
			},
			Synthetic: true,
		}
	}
	return out
}

// quoteFromLTP derives quote-shaped records from an LTP result so the
// middle fallback tier still returns a complete payload.
func quoteFromLTP(ltp map[string]Record) map[string]Record {
	out := make(map[string]Record, len(ltp))
	for k, rec := range ltp {
		price := rec.LastPrice
		out[k] = Record{
			LastPrice:    price,
			AveragePrice: price,
			OHLC:         &OHLC{Open: price, High: price, Low: price, Close: price},
			Synthetic:    rec.Synthetic,
		}
	}
	return out
}
