package quotes

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantrail/optionsfeed/internal/instrument"
	"github.com/quantrail/optionsfeed/internal/observ"
)

// fetchMode selects the upstream operation and the cache namespace, so
// LTP-shaped and quote-shaped records never shadow each other.
type fetchMode string

const (
	modeQuote fetchMode = "quote"
	modeLTP   fetchMode = "ltp"
)

// warnInterval caps repeated failure warnings to one line per category.
const warnInterval = 5 * time.Second

// Config holds the tunables of the acquisition pipeline. Zero values get
// the documented defaults in NewProvider.
type Config struct {
	BatchingEnabled      bool
	BatchWindow          time.Duration
	BatchOrderedDelivery bool

	CacheTTL         time.Duration // <= 0 disables caching
	CachePartialHits bool          // fetch only missing keys instead of all-or-nothing

	RateLimiterEnabled bool
	RequestsPerSecond  float64
	Burst              int
	CooldownThreshold  int
	Cooldown           time.Duration

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Provider is the public entry point of the pipeline. GetLTP and GetQuote
// never fail: every requested instrument receives exactly one Record, with
// synthetic placeholders filling in whenever the real path is unavailable.
type Provider struct {
	fetcher Fetcher
	cfg     Config
	limiter *Limiter
	cache   *Cache
	batcher *Aggregator

	// Session state: authFailed transitions monotonically to true and
	// disables all further real-call attempts for this instance.
	authFailed    atomic.Bool
	syntheticUsed atomic.Int64
	lastSynthetic atomic.Bool
	ltpFallbacks  atomic.Int64

	warnMu   sync.Mutex
	lastWarn map[ErrorKind]time.Time
}

// Diagnostics is a read-only snapshot for health checks and summaries.
type Diagnostics struct {
	CacheSize             int   `json:"cache_size"`
	CacheHits             int64 `json:"cache_hits"`
	CacheMisses           int64 `json:"cache_misses"`
	SyntheticQuotesUsed   int64 `json:"synthetic_quotes_used"`
	LastResponseSynthetic bool  `json:"last_response_synthetic"`
	LTPFallbacks          int64 `json:"ltp_fallbacks"`
	AuthFailed            bool  `json:"auth_failed"`
	CooldownActive        bool  `json:"cooldown_active"`
}

// NewProvider wires the pipeline around one upstream fetcher.
func NewProvider(fetcher Fetcher, cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}

	p := &Provider{
		fetcher:  fetcher,
		cfg:      cfg,
		cache:    NewCache(),
		lastWarn: make(map[ErrorKind]time.Time),
	}
	if cfg.RateLimiterEnabled {
		p.limiter = NewLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.CooldownThreshold, cfg.Cooldown)
	}
	p.batcher = NewAggregator(AggregatorConfig{
		Enabled: cfg.BatchingEnabled,
		Window:  cfg.BatchWindow,
		Ordered: cfg.BatchOrderedDelivery,
	}, func(ctx context.Context, keys []string) (map[string]Record, error) {
		return p.callUpstream(ctx, modeQuote, keys)
	})

	observ.Log("quote_provider_created", map[string]any{
		"batching_enabled":  cfg.BatchingEnabled,
		"batch_window_ms":   cfg.BatchWindow.Milliseconds(),
		"cache_ttl_ms":      cfg.CacheTTL.Milliseconds(),
		"rate_limiter":      cfg.RateLimiterEnabled,
		"cache_partial_hit": cfg.CachePartialHits,
	})
	return p
}

// GetLTP returns a last-traded price for every requested instrument.
// The skeleton is the same as GetQuote minus the batching tier.
func (p *Provider) GetLTP(ctx context.Context, instruments []instrument.Ref) map[string]Record {
	keys := instrument.Keys(instruments)
	if len(keys) == 0 {
		return map[string]Record{}
	}
	if p.authFailed.Load() {
		return p.synthesize(modeLTP, keys)
	}

	cached, missing := p.cacheLookup(modeLTP, keys)
	if len(missing) == 0 {
		p.lastSynthetic.Store(false)
		return cached
	}
	fetchKeys := keys
	if p.cfg.CachePartialHits && len(missing) < len(keys) {
		fetchKeys = missing
	} else {
		cached = nil // all-or-nothing: a single miss discards the hits
	}

	fresh, err := p.callUpstream(ctx, modeLTP, fetchKeys)
	if err != nil {
		p.recordFailure(err)
		return p.synthesize(modeLTP, keys)
	}
	p.cache.Put(prefixed(modeLTP, fresh), p.cfg.CacheTTL)
	p.lastSynthetic.Store(false)
	return p.complete(modeLTP, keys, merge(cached, fresh))
}

// GetQuote returns a full quote for every requested instrument. Two
// fallback tiers run before synthetic generation: the quote fetch itself,
// then quote-shaped records derived from the LTP path.
func (p *Provider) GetQuote(ctx context.Context, instruments []instrument.Ref) map[string]Record {
	keys := instrument.Keys(instruments)
	if len(keys) == 0 {
		return map[string]Record{}
	}
	if p.authFailed.Load() {
		return p.synthesize(modeQuote, keys)
	}

	cached, missing := p.cacheLookup(modeQuote, keys)
	if len(missing) == 0 {
		p.lastSynthetic.Store(false)
		return cached
	}
	fetchKeys := keys
	if p.cfg.CachePartialHits && len(missing) < len(keys) {
		fetchKeys = missing
	} else {
		cached = nil // all-or-nothing: a single miss discards the hits
	}

	fresh, err := p.batcher.Fetch(ctx, fetchKeys)
	if err == nil {
		p.cache.Put(prefixed(modeQuote, fresh), p.cfg.CacheTTL)
		p.lastSynthetic.Store(false)
		return p.complete(modeQuote, keys, merge(cached, fresh))
	}
	p.recordFailure(err)

	// Tier two: derive quote-shaped records from the LTP path, unless the
	// failure above already poisoned the session.
	if !p.authFailed.Load() {
		ltp, lerr := p.callUpstream(ctx, modeLTP, keys)
		if lerr == nil {
			p.ltpFallbacks.Add(1)
			observ.IncCounter("quote_ltp_fallback_total", nil)
			p.lastSynthetic.Store(false)
			return p.complete(modeQuote, keys, quoteFromLTP(ltp))
		}
		p.recordFailure(lerr)
	}

	return p.synthesize(modeQuote, keys)
}

// PopSyntheticQuoteUsage returns and resets the synthetic-response counter,
// plus whether the most recent response was synthetic.
func (p *Provider) PopSyntheticQuoteUsage() (int64, bool) {
	return p.syntheticUsed.Swap(0), p.lastSynthetic.Load()
}

// ProviderDiagnostics returns a read-only snapshot of pipeline state.
func (p *Provider) ProviderDiagnostics() Diagnostics {
	meta := p.cache.SnapshotMeta()
	d := Diagnostics{
		CacheSize:             meta.Size,
		CacheHits:             meta.Hits,
		CacheMisses:           meta.Misses,
		SyntheticQuotesUsed:   p.syntheticUsed.Load(),
		LastResponseSynthetic: p.lastSynthetic.Load(),
		LTPFallbacks:          p.ltpFallbacks.Load(),
		AuthFailed:            p.authFailed.Load(),
	}
	if p.limiter != nil {
		d.CooldownActive = p.limiter.CooldownActive()
	}
	return d
}

// callUpstream is the guarded network operation shared by the direct and
// batched paths: rate limiter admission, bounded retry with backoff, a
// soft per-call timeout, and the post-fetch quality guard.
func (p *Provider) callUpstream(ctx context.Context, mode fetchMode, keys []string) (map[string]Record, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.cfg.BackoffBase << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if p.limiter != nil {
			// With batching off the caller itself is waiting on this call, so
			// a cooldown fails fast into the synthetic tier instead of
			// blocking; the batched flusher can afford to queue.
			if err := p.limiter.Acquire(ctx, 1, !p.cfg.BatchingEnabled); err != nil {
				return nil, err
			}
		}

		fetchStart := time.Now()
		cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		result, err := p.fetch(cctx, mode, keys)
		cancel()
		observ.RecordDuration("upstream_latency", time.Since(fetchStart), map[string]string{"mode": string(mode)})

		if err != nil {
			lastErr = err
			kind := Classify(err)
			observ.IncCounter("upstream_errors_total", map[string]string{
				"mode": string(mode), "kind": string(kind),
			})
			switch kind {
			case KindRateLimited:
				if p.limiter != nil {
					p.limiter.RecordRateLimitError()
				}
			case KindAuth:
				// Retrying an expired token cannot help.
				return nil, err
			}
			continue
		}

		if qerr := checkQuality(result); qerr != nil {
			observ.IncCounter("upstream_errors_total", map[string]string{
				"mode": string(mode), "kind": string(KindMalformed),
			})
			return nil, qerr
		}

		if p.limiter != nil {
			p.limiter.RecordSuccess()
		}
		observ.IncCounter("upstream_calls_total", map[string]string{"mode": string(mode)})
		return result, nil
	}
	return nil, lastErr
}

func (p *Provider) fetch(ctx context.Context, mode fetchMode, keys []string) (map[string]Record, error) {
	if mode == modeLTP {
		return p.fetcher.FetchLTP(ctx, keys)
	}
	return p.fetcher.FetchQuotes(ctx, keys)
}

// cacheLookup reads every requested key and reports the misses. The
// default policy is all-or-nothing: callers treat any miss as a full miss
// unless partial-hit mode is enabled.
func (p *Provider) cacheLookup(mode fetchMode, keys []string) (map[string]Record, []string) {
	found := make(map[string]Record, len(keys))
	var missing []string
	for _, k := range keys {
		rec, hit := p.cache.Get(string(mode)+":"+k, p.cfg.CacheTTL)
		if !hit {
			missing = append(missing, k)
			continue
		}
		found[k] = rec
	}
	return found, missing
}

// recordFailure classifies a terminal fetch failure, updates sticky
// session state, and emits a throttled warning. Counters are exact even
// when the log line is suppressed.
func (p *Provider) recordFailure(err error) {
	kind := Classify(err)
	observ.IncCounter("quote_failures_total", map[string]string{"kind": string(kind)})

	if kind == KindAuth {
		p.authFailed.Store(true)
	}

	p.warnMu.Lock()
	last := p.lastWarn[kind]
	throttled := time.Since(last) < warnInterval
	if !throttled {
		p.lastWarn[kind] = time.Now()
	}
	p.warnMu.Unlock()

	if throttled {
		return
	}
	event := "quote_fetch_degraded"
	if kind == KindAuth {
		event = "quote_auth_failed"
	}
	observ.Log(event, map[string]any{"kind": string(kind), "error": err.Error()})
}

// synthesize produces the terminal fallback tier.
func (p *Provider) synthesize(mode fetchMode, keys []string) map[string]Record {
	p.syntheticUsed.Add(1)
	p.lastSynthetic.Store(true)
	observ.IncCounter("synthetic_responses_total", map[string]string{"mode": string(mode)})
	if mode == modeLTP {
		return syntheticLTP(keys)
	}
	return syntheticQuote(keys)
}

// complete enforces the boundary invariant: one record per requested key.
// Upstream payloads occasionally omit instruments; the gaps are filled
// with synthetic records rather than surfacing a missing-key outcome.
func (p *Provider) complete(mode fetchMode, keys []string, result map[string]Record) map[string]Record {
	out := make(map[string]Record, len(keys))
	var gaps []string
	for _, k := range keys {
		if rec, ok := result[k]; ok {
			out[k] = rec
			continue
		}
		gaps = append(gaps, k)
	}
	if len(gaps) > 0 {
		var fill map[string]Record
		if mode == modeLTP {
			fill = syntheticLTP(gaps)
		} else {
			fill = syntheticQuote(gaps)
		}
		for k, rec := range fill {
			out[k] = rec
		}
		observ.IncCounter("quote_gap_fills_total", map[string]string{"mode": string(mode)})
	}
	return out
}

func prefixed(mode fetchMode, records map[string]Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for k, rec := range records {
		out[string(mode)+":"+k] = rec
	}
	return out
}

func merge(a, b map[string]Record) map[string]Record {
	out := make(map[string]Record, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
