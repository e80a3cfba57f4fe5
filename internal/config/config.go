// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Rate     RateConfig     `mapstructure:"rate"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig locates the embedded price-history database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// CrawlerConfig governs orchestration behavior and crawl selection.
type CrawlerConfig struct {
	Concurrency  int      `mapstructure:"concurrency"`
	PageSize     int      `mapstructure:"page_size"`
	Outlets      []string `mapstructure:"outlets"`
	Categories   []string `mapstructure:"categories"`
	TaxonomyPath string   `mapstructure:"taxonomy_path"`
}

// RateConfig paces outgoing upstream calls.
type RateConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	MinDelayMs        int `mapstructure:"min_delay_ms"`
	MaxDelayMs        int `mapstructure:"max_delay_ms"`
	JitterMs          int `mapstructure:"jitter_ms"`
}

// RetryConfig controls exponential backoff around upstream calls.
type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// BreakerConfig controls the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"`
	HalfOpenRequests int `mapstructure:"half_open_requests"`
}

// UpstreamConfig points at the catalog API and its token acquisition.
type UpstreamConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	StorefrontURL     string `mapstructure:"storefront_url"`
	UserAgent         string `mapstructure:"user_agent"`
	Token             string `mapstructure:"token"`
	HeadlessToken     bool   `mapstructure:"headless_token"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`
	OpTimeoutSec      int    `mapstructure:"operation_timeout_seconds"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHELFWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.path", "shelfwatch.db")
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.page_size", 48)
	v.SetDefault("crawler.taxonomy_path", "categories.json")
	v.SetDefault("rate.requests_per_minute", 17)
	v.SetDefault("rate.min_delay_ms", 3000)
	v.SetDefault("rate.max_delay_ms", 4500)
	v.SetDefault("rate.jitter_ms", 500)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_ms", 60000)
	v.SetDefault("breaker.half_open_requests", 1)
	v.SetDefault("upstream.user_agent", "shelfwatch/1.0")
	v.SetDefault("upstream.headless_token", false)
	v.SetDefault("upstream.nav_timeout_seconds", 30)
	v.SetDefault("upstream.request_timeout_seconds", 20)
	v.SetDefault("upstream.operation_timeout_seconds", 120)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.Rate.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate.requests_per_minute must be > 0")
	}
	if c.Rate.MaxDelayMs < c.Rate.MinDelayMs {
		return fmt.Errorf("rate.max_delay_ms must be >= rate.min_delay_ms")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be >= 1")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Breaker.HalfOpenRequests <= 0 {
		return fmt.Errorf("breaker.half_open_requests must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// MinDelay returns the rate limiter minimum spacing as a duration.
func (c RateConfig) MinDelay() time.Duration { return time.Duration(c.MinDelayMs) * time.Millisecond }

// MaxDelay returns the rate limiter maximum spacing as a duration.
func (c RateConfig) MaxDelay() time.Duration { return time.Duration(c.MaxDelayMs) * time.Millisecond }

// Jitter returns the rate limiter jitter bound as a duration.
func (c RateConfig) Jitter() time.Duration { return time.Duration(c.JitterMs) * time.Millisecond }

// InitialDelay returns the first retry backoff as a duration.
func (c RetryConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (c RetryConfig) MaxDelay() time.Duration { return time.Duration(c.MaxDelayMs) * time.Millisecond }

// ResetTimeout returns the breaker open-state timeout as a duration.
func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMs) * time.Millisecond
}

// NavTimeout returns the headless navigation timeout as a duration.
func (c UpstreamConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout as a duration.
func (c UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// OpTimeout returns the whole-operation timeout as a duration.
func (c UpstreamConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSec) * time.Second
}
