package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Quotes struct {
	Adapter              string   `yaml:"adapter"` // mock | http
	BatchingEnabled      *bool    `yaml:"batching_enabled"`
	BatchWindowMs        int      `yaml:"batch_window_ms"`
	BatchOrderedDelivery *bool    `yaml:"batch_ordered_delivery"`
	CacheTTLSeconds      *float64 `yaml:"cache_ttl_seconds"` // <= 0 disables
	CachePartialHits     bool     `yaml:"cache_partial_hits"`
	RateLimiterEnabled   *bool    `yaml:"rate_limiter_enabled"`
	RequestsPerSecond    float64  `yaml:"requests_per_second"`
	Burst                int      `yaml:"burst"`
	CooldownThreshold    int      `yaml:"cooldown_threshold"`
	CooldownSeconds      int      `yaml:"cooldown_seconds"`
	TimeoutSeconds       float64  `yaml:"timeout_seconds"`
	MaxRetries           int      `yaml:"max_retries"`
	BackoffBaseMs        int      `yaml:"backoff_base_ms"`
}

type Broker struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	AccessTokenEnv string `yaml:"access_token_env"`
}

type Collector struct {
	IntervalSeconds int      `yaml:"interval_seconds"`
	Instruments     []string `yaml:"instruments"`
	OutputDir       string   `yaml:"output_dir"`
	ListenAddr      string   `yaml:"listen_addr"`
}

type Root struct {
	Quotes    Quotes    `yaml:"quotes"`
	Broker    Broker    `yaml:"broker"`
	Collector Collector `yaml:"collector"`
}

// Load reads a yaml config file and applies defaults for anything unset.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

// Default returns the configuration used when no file is supplied.
func Default() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	q := &c.Quotes
	if q.Adapter == "" {
		q.Adapter = "mock"
	}
	if q.BatchingEnabled == nil {
		q.BatchingEnabled = boolPtr(true)
	}
	if q.BatchWindowMs == 0 {
		q.BatchWindowMs = 15
	}
	if q.BatchOrderedDelivery == nil {
		q.BatchOrderedDelivery = boolPtr(true)
	}
	if q.CacheTTLSeconds == nil {
		q.CacheTTLSeconds = floatPtr(1) // explicit 0 stays 0 and disables caching
	}
	if q.RateLimiterEnabled == nil {
		q.RateLimiterEnabled = boolPtr(true)
	}
	if q.RequestsPerSecond == 0 {
		q.RequestsPerSecond = 3
	}
	if q.Burst == 0 {
		q.Burst = int(2 * q.RequestsPerSecond)
	}
	if q.CooldownThreshold == 0 {
		q.CooldownThreshold = 5
	}
	if q.CooldownSeconds == 0 {
		q.CooldownSeconds = 20
	}
	if q.TimeoutSeconds == 0 {
		q.TimeoutSeconds = 4
	}
	if q.MaxRetries == 0 {
		q.MaxRetries = 3
	}
	if q.BackoffBaseMs == 0 {
		q.BackoffBaseMs = 200
	}

	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://api.kite.trade"
	}
	if c.Broker.APIKeyEnv == "" {
		c.Broker.APIKeyEnv = "BROKER_API_KEY"
	}
	if c.Broker.AccessTokenEnv == "" {
		c.Broker.AccessTokenEnv = "BROKER_ACCESS_TOKEN"
	}

	if c.Collector.IntervalSeconds == 0 {
		c.Collector.IntervalSeconds = 60
	}
	if len(c.Collector.Instruments) == 0 {
		c.Collector.Instruments = []string{"NSE:NIFTY 50", "NSE:NIFTY BANK"}
	}
	if c.Collector.OutputDir == "" {
		c.Collector.OutputDir = "data"
	}
	if c.Collector.ListenAddr == "" {
		c.Collector.ListenAddr = ":8077"
	}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }
