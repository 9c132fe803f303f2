// Package config loads and validates crawler configuration via Viper.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trendscout/crawler/internal/crawl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	Direct    DirectConfig    `mapstructure:"direct"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig identifies the platform being crawled.
type SourceConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	UserAgent         string `mapstructure:"user_agent"`
	SessionTokensFile string `mapstructure:"session_tokens_file"`
}

// DirectConfig governs the direct HTTP acquisition tier.
type DirectConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	PageSize       int `mapstructure:"page_size"`
}

// Timeout returns the per-request timeout as a duration.
func (c DirectConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BrowserConfig governs the rendered-browser acquisition tier.
type BrowserConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	NavTimeoutSeconds int      `mapstructure:"nav_timeout_seconds"`
	ScrollPasses      int      `mapstructure:"scroll_passes"`
	ScrollDelayMs     int      `mapstructure:"scroll_delay_ms"`
	MaxRecords        int      `mapstructure:"max_records"`
	BlockKeywords     []string `mapstructure:"block_keywords"`
}

// NavTimeout returns the navigation timeout as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// ScrollDelay returns the base scroll pause as a duration.
func (c BrowserConfig) ScrollDelay() time.Duration {
	return time.Duration(c.ScrollDelayMs) * time.Millisecond
}

// ProxyEndpoint is one configured egress proxy.
type ProxyEndpoint struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ProxyConfig lists the proxy pool and its block window.
type ProxyConfig struct {
	Endpoints    []ProxyEndpoint `mapstructure:"endpoints"`
	BlockMinutes int             `mapstructure:"block_minutes"`
}

// BlockWindow returns how long a failing endpoint stays benched.
func (c ProxyConfig) BlockWindow() time.Duration {
	return time.Duration(c.BlockMinutes) * time.Minute
}

// RedisConfig covers both the job queue and the coordination store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueKey string `mapstructure:"queue_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	ProductsTable string `mapstructure:"products_table"`
	JobsTable     string `mapstructure:"jobs_table"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MinConns      int32  `mapstructure:"min_conns"`
}

// BreakerConfig controls the cross-process safety breaker.
type BreakerConfig struct {
	Threshold       int `mapstructure:"threshold"`
	CooldownMinutes int `mapstructure:"cooldown_minutes"`
}

// Cooldown returns the safety window length as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// RateLimitConfig throttles outbound requests per endpoint family.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// WorkerConfig governs the job execution loop.
type WorkerConfig struct {
	Concurrency           int `mapstructure:"concurrency"`
	MinRecords            int `mapstructure:"min_records"`
	RecycleEvery          int `mapstructure:"recycle_every"`
	DequeueTimeoutSeconds int `mapstructure:"dequeue_timeout_seconds"`
	IdleSleepMs           int `mapstructure:"idle_sleep_ms"`
}

// DequeueTimeout returns the queue pop timeout as a duration.
func (c WorkerConfig) DequeueTimeout() time.Duration {
	return time.Duration(c.DequeueTimeoutSeconds) * time.Second
}

// IdleSleep returns the queue-error backoff as a duration.
func (c WorkerConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepMs) * time.Millisecond
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.user_agent", "trendscout-bot/0.1")
	v.SetDefault("direct.timeout_seconds", 15)
	v.SetDefault("direct.max_retries", 3)
	v.SetDefault("direct.page_size", 20)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.scroll_passes", 6)
	v.SetDefault("browser.scroll_delay_ms", 600)
	v.SetDefault("browser.max_records", 60)
	v.SetDefault("proxy.block_minutes", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.queue_key", "crawler:jobs")
	v.SetDefault("db.products_table", "products")
	v.SetDefault("db.jobs_table", "acquisition_jobs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown_minutes", 60)
	v.SetDefault("ratelimit.requests_per_second", 2)
	v.SetDefault("ratelimit.burst", 4)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.min_records", 5)
	v.SetDefault("worker.recycle_every", 50)
	v.SetDefault("worker.dequeue_timeout_seconds", 5)
	v.SetDefault("worker.idle_sleep_ms", 1000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Direct.TimeoutSeconds <= 0 {
		return fmt.Errorf("direct.timeout_seconds must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("breaker.threshold must be > 0")
	}
	if c.Browser.Enabled && c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0 when the browser tier is enabled")
	}
	return nil
}

// LoadSessionTokens reads pre-provisioned session credentials from a JSON
// file. Provisioning lives outside this service; an empty path means the
// direct tier runs unauthenticated.
func LoadSessionTokens(path string) ([]crawl.SessionToken, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session tokens: %w", err)
	}
	var tokens []crawl.SessionToken
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("parse session tokens: %w", err)
	}
	return tokens, nil
}
