package instrument

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare symbol gets default exchange", in: "NIFTY 50", want: "NSE:NIFTY 50"},
		{name: "pre-formatted pair", in: "BSE:SENSEX", want: "BSE:SENSEX"},
		{name: "lowercase exchange normalized", in: "nse:NIFTY BANK", want: "NSE:NIFTY BANK"},
		{name: "surrounding whitespace trimmed", in: "  NSE:FINNIFTY  ", want: "NSE:FINNIFTY"},
		{name: "empty string", in: "", wantErr: true},
		{name: "colon with empty symbol", in: "NSE:", wantErr: true},
		{name: "whitespace only", in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && ref.Key() != tt.want {
				t.Errorf("Parse(%q).Key() = %q, want %q", tt.in, ref.Key(), tt.want)
			}
		})
	}
}

func TestNormalizeDropsMalformed(t *testing.T) {
	refs, dropped := Normalize([]string{"NSE:NIFTY 50", "", "BANKNIFTY", "  "})

	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if len(dropped) != 2 {
		t.Fatalf("got %d dropped, want 2", len(dropped))
	}
	if refs[0].Key() != "NSE:NIFTY 50" || refs[1].Key() != "NSE:BANKNIFTY" {
		t.Errorf("unexpected refs: %v", refs)
	}
}

func TestKeysDeduplicates(t *testing.T) {
	a, _ := Parse("NSE:NIFTY 50")
	b, _ := Parse("NIFTY 50") // same instrument via default exchange
	c, _ := Parse("BSE:SENSEX")

	keys := Keys([]Ref{a, b, c})
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
	if keys[0] != "NSE:NIFTY 50" || keys[1] != "BSE:SENSEX" {
		t.Errorf("order not preserved: %v", keys)
	}
}
