package quotes

import (
	"testing"
)

func TestAnchorFor(t *testing.T) {
	tests := []struct {
		key  string
		want float64
	}{
		{"NSE:NIFTY 50", 22500},
		{"NSE:NIFTY BANK", 48000},
		{"NFO:BANKNIFTY", 48000},
		{"NSE:FINNIFTY", 21500},
		{"NSE:NIFTY FIN SERVICE", 21500},
		{"NSE:MIDCPNIFTY", 12000},
		{"BSE:SENSEX", 74000},
		{"nse:nifty 50", 22500},      // case-insensitive symbol lookup
		{"NIFTY 50", 22500},          // bare symbol, no exchange prefix
		{"NFO:NIFTY24AUGFUT", 1000},  // unknown contract falls to default
		{"NSE:RELIANCE", 1000},
	}

	for _, tt := range tests {
		if got := anchorFor(tt.key); got != tt.want {
			t.Errorf("anchorFor(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSyntheticQuoteShape(t *testing.T) {
	keys := []string{"NSE:NIFTY 50", "NSE:UNKNOWN"}
	out := syntheticQuote(keys)

	if len(out) != len(keys) {
		t.Fatalf("got %d records, want %d", len(out), len(keys))
	}
	for _, k := range keys {
		rec, ok := out[k]
		if !ok {
			t.Fatalf("missing record for %s", k)
		}
		if !rec.Synthetic {
			t.Errorf("%s: synthetic flag not set", k)
		}
		if rec.LastPrice <= 0 || rec.Volume <= 0 || rec.OpenInterest <= 0 {
			t.Errorf("%s: non-positive fields: %+v", k, rec)
		}
		if rec.OHLC == nil {
			t.Fatalf("%s: missing OHLC", k)
		}
		if rec.OHLC.High < rec.LastPrice || rec.OHLC.Low > rec.LastPrice {
			t.Errorf("%s: OHLC band does not contain last price: %+v", k, rec.OHLC)
		}
	}
}

func TestSyntheticDeterminism(t *testing.T) {
	keys := []string{"NSE:NIFTY 50", "NSE:NIFTY BANK"}

	first := syntheticQuote(keys)
	second := syntheticQuote(keys)
	for _, k := range keys {
		if first[k].LastPrice != second[k].LastPrice || *first[k].OHLC != *second[k].OHLC {
			t.Errorf("%s: repeated generation differs: %+v vs %+v", k, first[k], second[k])
		}
	}

	ltp := syntheticLTP(keys)
	for _, k := range keys {
		if ltp[k].LastPrice != first[k].LastPrice {
			t.Errorf("%s: LTP anchor %v diverges from quote anchor %v", k, ltp[k].LastPrice, first[k].LastPrice)
		}
		if !ltp[k].Synthetic {
			t.Errorf("%s: synthetic flag not set on LTP record", k)
		}
	}
}

func TestQuoteFromLTP(t *testing.T) {
	src := map[string]Record{
		"NSE:NIFTY 50": {LastPrice: 22510.5},
	}
	out := quoteFromLTP(src)

	rec := out["NSE:NIFTY 50"]
	if rec.LastPrice != 22510.5 || rec.AveragePrice != 22510.5 {
		t.Fatalf("unexpected prices: %+v", rec)
	}
	want := OHLC{Open: 22510.5, High: 22510.5, Low: 22510.5, Close: 22510.5}
	if rec.OHLC == nil || *rec.OHLC != want {
		t.Fatalf("expected flat OHLC at last price, got %+v", rec.OHLC)
	}
	if rec.Synthetic {
		t.Error("LTP-derived record must not be flagged synthetic")
	}
}
