package quotes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantrail/optionsfeed/internal/observ"
)

// upstreamCall is the guarded network operation the aggregator flushes
// into: the provider injects a function that already applies the rate
// limiter, retry policy and soft timeout.
type upstreamCall func(ctx context.Context, keys []string) (map[string]Record, error)

type batchResult struct {
	records map[string]Record
	err     error
}

// batchRequest lives for one aggregation window. Both channels are
// buffered so neither side can wedge the other: the flusher never blocks
// delivering to an abandoned caller, and a caller never blocks acking.
type batchRequest struct {
	keys   []string
	result chan batchResult
	ack    chan struct{}
}

// Aggregator coalesces quote requests that arrive within a short window
// into one upstream call for the union of their symbols, then fans the
// result back out so each caller sees only the subset it asked for.
type Aggregator struct {
	call    upstreamCall
	window  time.Duration
	enabled bool
	ordered bool
	ackWait time.Duration

	mu      sync.Mutex
	pending []*batchRequest
	symbols map[string]struct{}
	armed   bool
}

// AggregatorConfig controls coalescing behavior. Ordered enables the
// per-caller acknowledgment handshake that makes result delivery FIFO
// within a window, at the cost of a small bounded handoff delay.
type AggregatorConfig struct {
	Enabled bool
	Window  time.Duration
	Ordered bool
}

func NewAggregator(cfg AggregatorConfig, call upstreamCall) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Millisecond
	}
	return &Aggregator{
		call:    call,
		window:  cfg.Window,
		enabled: cfg.Enabled,
		ordered: cfg.Ordered,
		ackWait: 100 * time.Millisecond,
		symbols: make(map[string]struct{}),
	}
}

// Fetch returns quotes for keys. When batching is enabled the caller joins
// the current window and blocks until its flush delivers; when disabled it
// degrades to one direct (still guarded) call per caller.
func (a *Aggregator) Fetch(ctx context.Context, keys []string) (map[string]Record, error) {
	if !a.enabled {
		return a.call(ctx, dedupeKeys(keys))
	}

	req := &batchRequest{
		keys:   dedupeKeys(keys),
		result: make(chan batchResult, 1),
		ack:    make(chan struct{}, 1),
	}

	a.mu.Lock()
	a.pending = append(a.pending, req)
	for _, k := range req.keys {
		a.symbols[k] = struct{}{}
	}
	if !a.armed {
		a.armed = true
		time.AfterFunc(a.window, a.flush)
	}
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-req.result:
		req.ack <- struct{}{}
		return res.records, res.err
	}
}

// flush snapshots and resets the pending state under the lock, then makes
// exactly one upstream call outside it, so a new window can start
// accumulating while this batch's call is in flight.
func (a *Aggregator) flush() {
	a.mu.Lock()
	pending := a.pending
	symbols := a.symbols
	a.pending = nil
	a.symbols = make(map[string]struct{})
	a.armed = false
	a.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	union := make([]string, 0, len(symbols))
	for k := range symbols {
		union = append(union, k)
	}
	sort.Strings(union)

	observ.Observe("quote_batch_size", float64(len(pending)), nil)
	observ.Observe("quote_batch_symbols", float64(len(union)), nil)

	records, err := a.call(context.Background(), union)

	// FIFO fan-out: each caller gets its own subset, or the shared error.
	for _, req := range pending {
		res := batchResult{err: err}
		if err == nil {
			res.records = subset(records, req.keys)
		}
		req.result <- res

		if a.ordered {
			timer := time.NewTimer(a.ackWait)
			select {
			case <-req.ack:
			case <-timer.C: // caller abandoned; keep the line moving
			}
			timer.Stop()
		}
	}
}

func subset(records map[string]Record, keys []string) map[string]Record {
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		if rec, ok := records[k]; ok {
			out[k] = rec
		}
	}
	return out
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
