package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/quantrail/optionsfeed/internal/config"
	"github.com/quantrail/optionsfeed/internal/instrument"
	"github.com/quantrail/optionsfeed/internal/observ"
	"github.com/quantrail/optionsfeed/internal/quotes"
	"github.com/quantrail/optionsfeed/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config (defaults apply when omitted)")
	once := flag.Bool("once", false, "run a single collection cycle and exit")
	flag.Parse()

	// Credentials come from the environment; .env is a dev convenience.
	_ = godotenv.Load()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			observ.Log("config_load_failed", map[string]any{"path": *configPath, "error": err.Error()})
			os.Exit(1)
		}
		cfg = loaded
	}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		observ.Log("fetcher_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	provider := quotes.NewProvider(fetcher, providerConfig(cfg.Quotes))

	refs, dropped := instrument.Normalize(cfg.Collector.Instruments)
	if len(dropped) > 0 {
		observ.Log("instruments_dropped", map[string]any{"dropped": dropped})
	}
	if len(refs) == 0 {
		observ.Log("no_instruments_configured", nil)
		os.Exit(1)
	}

	csvSink, err := sink.NewCSV(cfg.Collector.OutputDir)
	if err != nil {
		observ.Log("sink_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	collect := func() { runCycle(provider, refs, csvSink) }

	if *once {
		collect()
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	mux.Handle("/healthz", observ.HealthHandler())
	srv := &http.Server{Addr: cfg.Collector.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observ.Log("http_server_failed", map[string]any{"error": err.Error()})
		}
	}()

	c := cron.New()
	spec := fmt.Sprintf("@every %ds", cfg.Collector.IntervalSeconds)
	if _, err := c.AddFunc(spec, collect); err != nil {
		observ.Log("schedule_failed", map[string]any{"spec": spec, "error": err.Error()})
		os.Exit(1)
	}
	c.Start()
	observ.Log("collector_started", map[string]any{
		"interval_seconds": cfg.Collector.IntervalSeconds,
		"instruments":      len(refs),
		"adapter":          adapterName(cfg),
		"listen_addr":      cfg.Collector.ListenAddr,
	})
	collect() // first cycle immediately rather than after one interval

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cronCtx := c.Stop()
	<-cronCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	observ.Log("collector_stopped", nil)
}

func providerConfig(q config.Quotes) quotes.Config {
	return quotes.Config{
		BatchingEnabled:      *q.BatchingEnabled,
		BatchWindow:          time.Duration(q.BatchWindowMs) * time.Millisecond,
		BatchOrderedDelivery: *q.BatchOrderedDelivery,
		CacheTTL:             time.Duration(*q.CacheTTLSeconds * float64(time.Second)),
		CachePartialHits:     q.CachePartialHits,
		RateLimiterEnabled:   *q.RateLimiterEnabled,
		RequestsPerSecond:    q.RequestsPerSecond,
		Burst:                q.Burst,
		CooldownThreshold:    q.CooldownThreshold,
		Cooldown:             time.Duration(q.CooldownSeconds) * time.Second,
		Timeout:              time.Duration(q.TimeoutSeconds * float64(time.Second)),
		MaxRetries:           q.MaxRetries,
		BackoffBase:          time.Duration(q.BackoffBaseMs) * time.Millisecond,
	}
}

// runCycle performs one collection: fetch quotes for every configured
// instrument, append them to the sink, and publish cycle diagnostics.
func runCycle(provider *quotes.Provider, refs []instrument.Ref, csvSink *sink.CSV) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records := provider.GetQuote(ctx, refs)
	if err := csvSink.Append(start, records); err != nil {
		observ.Log("sink_append_failed", map[string]any{"error": err.Error()})
	}

	diag := provider.ProviderDiagnostics()
	gauge := 0.0
	if diag.CooldownActive {
		gauge = 1.0
	}
	observ.SetGauge("limiter_cooldown_active", gauge, nil)

	syntheticCount, lastSynthetic := provider.PopSyntheticQuoteUsage()
	observ.Log("collection_cycle", map[string]any{
		"instruments":    len(refs),
		"duration_ms":    time.Since(start).Milliseconds(),
		"synthetic_used": syntheticCount,
		"last_synthetic": lastSynthetic,
		"cache_size":     diag.CacheSize,
		"auth_failed":    diag.AuthFailed,
	})
}

// buildFetcher selects the upstream adapter; the QUOTES_ADAPTER env var
// overrides the config so ops can flip to mock without editing files.
func buildFetcher(cfg config.Root) (quotes.Fetcher, error) {
	adapter := adapterName(cfg)
	switch adapter {
	case "mock":
		return quotes.NewMockFetcher(), nil
	case "http":
		return quotes.NewHTTPFetcher(quotes.HTTPFetcherConfig{
			BaseURL:     cfg.Broker.BaseURL,
			APIKey:      os.Getenv(cfg.Broker.APIKeyEnv),
			AccessToken: os.Getenv(cfg.Broker.AccessTokenEnv),
		})
	default:
		observ.Log("unknown_adapter_fallback", map[string]any{"requested": adapter, "fallback": "mock"})
		return quotes.NewMockFetcher(), nil
	}
}

func adapterName(cfg config.Root) string {
	adapter := strings.ToLower(strings.TrimSpace(cfg.Quotes.Adapter))
	if env := os.Getenv("QUOTES_ADAPTER"); env != "" {
		adapter = strings.ToLower(strings.TrimSpace(env))
	}
	return adapter
}
