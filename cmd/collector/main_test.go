package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/optionsfeed/internal/config"
	"github.com/quantrail/optionsfeed/internal/instrument"
	"github.com/quantrail/optionsfeed/internal/quotes"
	"github.com/quantrail/optionsfeed/internal/sink"
)

func TestCollectionCycleWithMockAdapter(t *testing.T) {
	t.Setenv("QUOTES_ADAPTER", "")

	cfg := config.Default()
	cfg.Collector.OutputDir = t.TempDir()

	fetcher, err := buildFetcher(cfg)
	require.NoError(t, err)
	require.IsType(t, &quotes.MockFetcher{}, fetcher)

	provider := quotes.NewProvider(fetcher, providerConfig(cfg.Quotes))
	refs, dropped := instrument.Normalize(cfg.Collector.Instruments)
	require.Empty(t, dropped)
	csvSink, err := sink.NewCSV(cfg.Collector.OutputDir)
	require.NoError(t, err)

	runCycle(provider, refs, csvSink)

	path := filepath.Join(cfg.Collector.OutputDir,
		"quotes-"+time.Now().UTC().Format("2006-01-02")+".csv")
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1+len(refs)) // header + one row per instrument
	assert.Contains(t, lines[0], "last_price")
	assert.Contains(t, lines[1], "NSE:NIFTY 50")
	assert.Contains(t, lines[2], "NSE:NIFTY BANK")
	for _, row := range lines[1:] {
		assert.True(t, strings.HasSuffix(row, ",false"), "mock data must not be synthetic: %s", row)
	}
}

func TestBuildFetcherSelection(t *testing.T) {
	cfg := config.Default()

	t.Setenv("QUOTES_ADAPTER", "")
	f, err := buildFetcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &quotes.MockFetcher{}, f)

	// http without credentials fails loudly rather than limping along.
	t.Setenv("QUOTES_ADAPTER", "http")
	t.Setenv(cfg.Broker.APIKeyEnv, "")
	t.Setenv(cfg.Broker.AccessTokenEnv, "")
	_, err = buildFetcher(cfg)
	assert.Error(t, err)

	t.Setenv(cfg.Broker.APIKeyEnv, "key")
	t.Setenv(cfg.Broker.AccessTokenEnv, "token")
	f, err = buildFetcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &quotes.HTTPFetcher{}, f)

	// An unknown adapter name falls back to mock instead of aborting.
	t.Setenv("QUOTES_ADAPTER", "bogus")
	f, err = buildFetcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &quotes.MockFetcher{}, f)
}
