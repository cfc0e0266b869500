package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Sources     SourcesConfig     `yaml:"sources"`
	Filter      FilterConfig      `yaml:"filter"`
	LLM         LLMConfig         `yaml:"llm"`
	Trending    TrendingConfig    `yaml:"trending"`
	Graph       GraphConfig       `yaml:"graph"`
	Translation TranslationConfig `yaml:"translation"`
	Events      EventsConfig      `yaml:"events"`
	Server      ServerConfig      `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ScheduleConfig configures daemon intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	TrendInterval   string `yaml:"trend_interval"`
	GraphInterval   string `yaml:"graph_interval"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	return parseDuration(s.CollectInterval, 15*time.Minute)
}

// ParseTrendInterval returns the trending recompute interval as time.Duration.
func (s ScheduleConfig) ParseTrendInterval() time.Duration {
	return parseDuration(s.TrendInterval, time.Hour)
}

// ParseGraphInterval returns the knowledge graph ingestion interval as time.Duration.
func (s ScheduleConfig) ParseGraphInterval() time.Duration {
	return parseDuration(s.GraphInterval, 30*time.Minute)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SourcesConfig holds configuration for all article collectors.
type SourcesConfig struct {
	HackerNews HackerNewsConfig `yaml:"hackernews"`
	ArXiv      ArXivConfig      `yaml:"arxiv"`
	RSS        RSSConfig        `yaml:"rss"`
}

// HackerNewsConfig for Hacker News collector.
type HackerNewsConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// ArXivConfig for ArXiv collector.
type ArXivConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Categories []string `yaml:"categories"`
	MaxResults int      `yaml:"max_results"`
}

// RSSConfig for RSS feed collector.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
}

// FilterConfig configures content filtering.
type FilterConfig struct {
	ExtraKeywords   []string `yaml:"extra_keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// LLMConfig configures the text-generation provider shared by refinement,
// entity extraction and translation.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// Enabled reports whether an API key is configured.
func (l LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

// ParseTimeout returns the request timeout as time.Duration.
func (l LLMConfig) ParseTimeout() time.Duration {
	return parseDuration(l.Timeout, 60*time.Second)
}

// TrendingConfig configures trending topic scoring.
type TrendingConfig struct {
	WindowHours int    `yaml:"window_hours"`
	CacheTTL    string `yaml:"cache_ttl"`
	Limit       int    `yaml:"limit"`
	Refine      bool   `yaml:"refine"`
}

// ParseCacheTTL returns how long a computed result is served from cache.
func (t TrendingConfig) ParseCacheTTL() time.Duration {
	return parseDuration(t.CacheTTL, time.Hour)
}

// GraphConfig configures knowledge graph ingestion.
type GraphConfig struct {
	Enabled   bool `yaml:"enabled"`
	BatchSize int  `yaml:"batch_size"`
}

// TranslationConfig configures title translation at collect time.
type TranslationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TargetLanguage string `yaml:"target_language"`
}

// EventsConfig configures event observers.
type EventsConfig struct {
	Log     bool          `yaml:"log"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig for the generic webhook observer.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./aipulse.db"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Schedule: ScheduleConfig{
			CollectInterval: "15m",
			TrendInterval:   "1h",
			GraphInterval:   "30m",
		},
		Sources: SourcesConfig{
			HackerNews: HackerNewsConfig{Enabled: true, Limit: 100},
			ArXiv: ArXivConfig{
				Enabled:    true,
				Categories: []string{"cs.AI", "cs.CL", "cs.LG"},
				MaxResults: 50,
			},
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedItem{
					{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/", Language: "en"},
					{Name: "The Verge AI", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml", Language: "en"},
					{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/", Language: "en"},
				},
			},
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
		},
		Trending: TrendingConfig{
			WindowHours: 24,
			CacheTTL:    "1h",
			Limit:       20,
		},
		Graph:       GraphConfig{Enabled: true, BatchSize: 20},
		Translation: TranslationConfig{TargetLanguage: "ko"},
		Events:      EventsConfig{Log: true},
		Server:      ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AIPULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "anthropic"
		if cfg.LLM.Model == "gpt-4o-mini" {
			cfg.LLM.Model = ""
		}
	}
	if v := os.Getenv("AIPULSE_WEBHOOK_URL"); v != "" {
		cfg.Events.Webhook.URL = v
		cfg.Events.Webhook.Enabled = true
	}
	if v := os.Getenv("AIPULSE_WEBHOOK_SECRET"); v != "" {
		cfg.Events.Webhook.Secret = v
	}
}
