package instrument

import (
	"fmt"
	"strings"
)

// DefaultExchange is assumed when a caller passes a bare trading symbol.
const DefaultExchange = "NSE"

// Ref identifies a tradable contract as an exchange + trading-symbol pair.
// It is immutable once constructed; Key() is the canonical form used for
// cache and network keys.
type Ref struct {
	Exchange string
	Symbol   string
}

// Key returns the "EXCHANGE:SYMBOL" form.
func (r Ref) Key() string {
	return r.Exchange + ":" + r.Symbol
}

func (r Ref) String() string { return r.Key() }

// New builds a Ref from an explicit pair, normalizing whitespace and case
// on the exchange. Symbols keep their original case and internal spaces
// ("NIFTY 50" is a valid trading symbol).
func New(exchange, symbol string) (Ref, error) {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	symbol = strings.TrimSpace(symbol)
	if exchange == "" {
		exchange = DefaultExchange
	}
	if symbol == "" {
		return Ref{}, fmt.Errorf("empty symbol")
	}
	return Ref{Exchange: exchange, Symbol: symbol}, nil
}

// Parse accepts either a bare symbol ("NIFTY 50") or a pre-formatted
// "EXCHANGE:SYMBOL" string ("NSE:NIFTY 50").
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty instrument")
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return New(s[:i], s[i+1:])
	}
	return New(DefaultExchange, s)
}

// Normalize converts a mixed list of instrument strings into Refs.
// Malformed entries are dropped and reported via the returned slice of
// diagnostics; they are never fatal.
func Normalize(raw []string) (refs []Ref, dropped []string) {
	refs = make([]Ref, 0, len(raw))
	for _, s := range raw {
		ref, err := Parse(s)
		if err != nil {
			dropped = append(dropped, s)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, dropped
}

// Keys formats a list of Refs into their canonical key form, preserving
// order and de-duplicating.
func Keys(refs []Ref) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
