// Package config loads service configuration from file and environment via
// viper. Environment variables use the CRAWLCONSOLE_ prefix with dots
// replaced by underscores, e.g. CRAWLCONSOLE_SERVER_PORT.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Render    RenderConfig    `mapstructure:"render"`
	Robots    RobotsConfig    `mapstructure:"robots"`
	Store     StoreConfig     `mapstructure:"store"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// CrawlerConfig holds per-job orchestration defaults and fetch tuning.
type CrawlerConfig struct {
	Concurrency           int    `mapstructure:"concurrency"`
	MaxConcurrency        int    `mapstructure:"max_concurrency"`
	UserAgent             string `mapstructure:"user_agent"`
	DelayMs               int    `mapstructure:"delay_ms"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
	MaxDepthDefault       int    `mapstructure:"max_depth_default"`
	MaxPagesDefault       int    `mapstructure:"max_pages_default"`
	JobBudgetSeconds      int    `mapstructure:"job_budget_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	MaxRetries            int    `mapstructure:"max_retries"`
	BackoffInitialMs      int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int    `mapstructure:"backoff_max_ms"`
}

// RenderConfig holds headless browser settings.
type RenderConfig struct {
	HeadlessEnabled   bool    `mapstructure:"headless_enabled"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// RobotsConfig holds robots.txt cache settings.
type RobotsConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

// StoreConfig selects and configures the result store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// PublisherConfig configures the optional Pub/Sub completion events.
type PublisherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// AgentConfig configures the LLM extraction backend. Models maps model IDs to
// display names for the catalog endpoint.
type AgentConfig struct {
	APIKey       string            `mapstructure:"api_key"`
	BaseURL      string            `mapstructure:"base_url"`
	DefaultModel string            `mapstructure:"default_model"`
	Models       map[string]string `mapstructure:"models"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from the optional config file at path (YAML) and
// the environment, applies defaults, and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRAWLCONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 15)

	v.SetDefault("crawler.concurrency", 3)
	v.SetDefault("crawler.max_concurrency", 20)
	v.SetDefault("crawler.user_agent", "CrawlConsoleBot/1.0")
	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_depth_default", 2)
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.job_budget_seconds", 300)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_initial_ms", 500)
	v.SetDefault("crawler.backoff_max_ms", 10000)

	v.SetDefault("render.headless_enabled", false)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout_seconds", 45)
	v.SetDefault("render.domain_qps", 1.0)

	v.SetDefault("robots.cache_ttl_minutes", 60)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "crawlconsole.db")

	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.topic", "crawl-jobs-completed")

	v.SetDefault("agent.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("agent.default_model", "google/gemini-2.0-flash-001")
	v.SetDefault("agent.models", map[string]string{
		"google/gemini-2.0-flash-001":  "Gemini 2.0 Flash",
		"xiaomi/mimo-v2-flash:free":    "Xiaomi MIMO v2 Flash (Free)",
		"mistralai/devstral-2512:free": "Mistral Devstral (Free)",
	})

	v.SetDefault("logging.development", false)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("crawler.concurrency must be positive, got %d", c.Crawler.Concurrency)
	}
	if c.Crawler.MaxConcurrency < c.Crawler.Concurrency {
		return fmt.Errorf("crawler.max_concurrency %d below crawler.concurrency %d",
			c.Crawler.MaxConcurrency, c.Crawler.Concurrency)
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must not be empty")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must not be negative, got %d", c.Crawler.MaxRetries)
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver %q not one of memory, sqlite, postgres", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn required for driver %q", c.Store.Driver)
	}
	if c.Publisher.Enabled && c.Publisher.ProjectID == "" {
		return fmt.Errorf("publisher.project_id required when publisher is enabled")
	}
	return nil
}

// Delay returns the per-origin politeness delay.
func (c *CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// RequestTimeout returns the per-attempt fetch timeout.
func (c *CrawlerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c *CrawlerConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c *CrawlerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}
