// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Collector CollectorConfig `mapstructure:"collector"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Tagger    TaggerConfig    `mapstructure:"tagger"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory store (development and tests).
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig controls the optional API response cache.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// FetchConfig configures HTTP fetch retry behavior.
type FetchConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// CollectorConfig governs dedup/filter behavior of collection runs.
type CollectorConfig struct {
	Keywords     []string `mapstructure:"keywords"`
	ChannelLimit int      `mapstructure:"channel_limit"`
}

// OpenAIConfig defines how to contact the text-generation service.
type OpenAIConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	Prompt         string  `mapstructure:"prompt"`
	KeywordPrompt  string  `mapstructure:"keyword_prompt"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// GeneratorConfig bounds post generation per run.
type GeneratorConfig struct {
	MaxPerRun     int `mapstructure:"max_per_run"`
	RetryCeiling  int `mapstructure:"retry_ceiling"`
	MinTextLength int `mapstructure:"min_text_length"`
}

// TaggerConfig bounds keyword extraction.
type TaggerConfig struct {
	MaxKeywords int `mapstructure:"max_keywords"`
}

// CleanupConfig controls the purge sweep for dead posts.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	MaxPerRun     int `mapstructure:"max_per_run"`
}

// RateLimitConfig parameterizes the generation-call limiter.
type RateLimitConfig struct {
	Burst           int `mapstructure:"burst"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// TelegramConfig wires the destination channel.
type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// ScheduleConfig sets the cadence of each pipeline job, in seconds.
type ScheduleConfig struct {
	CollectEvery  int `mapstructure:"collect_every"`
	GenerateEvery int `mapstructure:"generate_every"`
	TagEvery      int `mapstructure:"tag_every"`
	PublishEvery  int `mapstructure:"publish_every"`
	CleanupEvery  int `mapstructure:"cleanup_every"`
}

// PubSubConfig holds metadata for pipeline event notifications.
// Empty project disables event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig selects the raw HTML archive. Empty bucket keeps the
// archive in memory only when enabled; disabled means no archiving.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// SourceConfig declares one configured origin; rows are upserted at boot.
type SourceConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	Parser  string `mapstructure:"parser"`
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSFORGE")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.ttl_seconds", 60)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.user_agent", "newsforge-bot/1.0")
	v.SetDefault("collector.channel_limit", 50)
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout_seconds", 30)
	v.SetDefault("generator.max_per_run", 3)
	v.SetDefault("generator.retry_ceiling", 3)
	v.SetDefault("generator.min_text_length", 20)
	v.SetDefault("tagger.max_keywords", 4)
	v.SetDefault("cleanup.retention_days", 7)
	v.SetDefault("cleanup.max_per_run", 20)
	v.SetDefault("rate_limit.burst", 3)
	v.SetDefault("rate_limit.interval_seconds", 20)
	v.SetDefault("rate_limit.cooldown_seconds", 60)
	v.SetDefault("schedule.collect_every", 1800)
	v.SetDefault("schedule.generate_every", 600)
	v.SetDefault("schedule.tag_every", 600)
	v.SetDefault("schedule.publish_every", 300)
	v.SetDefault("schedule.cleanup_every", 86400)
	v.SetDefault("archive.prefix", "pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.APIKey == "" {
		return fmt.Errorf("server.auth.api_key must be set when auth is enabled")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Generator.RetryCeiling <= 0 {
		return fmt.Errorf("generator.retry_ceiling must be > 0")
	}
	if c.Generator.MaxPerRun <= 0 {
		return fmt.Errorf("generator.max_per_run must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be > 0")
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name must be set", i)
		}
		if src.Kind != "site" && src.Kind != "channel" {
			return fmt.Errorf("sources[%d].kind must be site or channel", i)
		}
		if src.Parser == "" {
			return fmt.Errorf("sources[%d].parser must be set", i)
		}
	}
	return nil
}

// FetchTimeout converts the fetch timeout setting into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RateLimitInterval is the minimum spacing between generation calls.
func (c Config) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimit.IntervalSeconds) * time.Second
}

// RateLimitCooldown is the forced pause after a burst or 429 signal.
func (c Config) RateLimitCooldown() time.Duration {
	return time.Duration(c.RateLimit.CooldownSeconds) * time.Second
}

// Retention is the age past which dead posts are purged.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Cleanup.RetentionDays) * 24 * time.Hour
}
