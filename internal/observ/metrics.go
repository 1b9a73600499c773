package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
	// cap sample retention per series
	if len(m[k]) > 4096 {
		m[k] = m[k][len(m[k])-4096:]
	}
}

// RecordDuration records a duration observation in milliseconds.
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(d.Milliseconds()), labels)
}

// CounterTotal sums a counter across all label sets.
func CounterTotal(name string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, v := range reg.counters[name] {
		total += v
	}
	return total
}

// Basic JSON dump for quick checks (not Prometheus format on purpose).
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// PipelineHealth summarizes the acquisition pipeline's state for the
// health endpoint: how much of recent output was synthetic, cache
// efficiency, and whether the upstream is in cooldown.
type PipelineHealth struct {
	Status             string  `json:"status"` // "healthy" | "degraded" | "failed"
	Timestamp          string  `json:"timestamp"`
	Uptime             string  `json:"uptime"`
	UpstreamCalls      int64   `json:"upstream_calls"`
	UpstreamErrors     int64   `json:"upstream_errors"`
	SyntheticResponses int64   `json:"synthetic_responses"`
	SyntheticRate      float64 `json:"synthetic_rate"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	CooldownActive     bool    `json:"cooldown_active"`
}

var startTime = time.Now()

// HealthHandler reports pipeline health derived from the registry. The
// pipeline itself never fails callers, so "failed" here means output is
// predominantly synthetic, and "degraded" means the upstream is erroring
// or cooling down while real data still flows.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := snapshotHealth()

		statusCode := http.StatusOK
		switch h.Status {
		case "degraded":
			statusCode = http.StatusPartialContent
		case "failed":
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(h)
	})
}

func snapshotHealth() PipelineHealth {
	calls := CounterTotal("upstream_calls_total")
	errs := CounterTotal("upstream_errors_total")
	synth := CounterTotal("synthetic_responses_total")
	hits := CounterTotal("quote_cache_hits_total")
	misses := CounterTotal("quote_cache_misses_total")

	h := PipelineHealth{
		Status:             "healthy",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Uptime:             time.Since(startTime).String(),
		UpstreamCalls:      calls,
		UpstreamErrors:     errs,
		SyntheticResponses: synth,
	}

	responses := calls + synth
	if responses > 0 {
		h.SyntheticRate = float64(synth) / float64(responses)
	}
	if hits+misses > 0 {
		h.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	reg.mu.Lock()
	for _, v := range reg.gauges["limiter_cooldown_active"] {
		h.CooldownActive = v == 1
	}
	reg.mu.Unlock()

	switch {
	case responses >= 10 && h.SyntheticRate > 0.5:
		h.Status = "failed"
	case h.CooldownActive || (calls >= 10 && float64(errs)/float64(calls) > 0.1):
		h.Status = "degraded"
	}
	return h
}
