// Package config loads and validates finder configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Verbose  bool           `mapstructure:"verbose"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Session  SessionConfig  `mapstructure:"session"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ScrapeConfig governs the worker pool and each scrape task.
type ScrapeConfig struct {
	Workers             int     `mapstructure:"workers"`
	TaskTimeoutSeconds  float64 `mapstructure:"task_timeout_seconds"`
	RevealWaitSeconds   float64 `mapstructure:"reveal_wait_seconds"`
	PollIntervalSeconds float64 `mapstructure:"poll_interval_seconds"`
	PageLoadTimeoutSecs float64 `mapstructure:"page_load_timeout_seconds"`
	ReleaseGraceSeconds float64 `mapstructure:"release_grace_seconds"`
	CacheEmptyResults   bool    `mapstructure:"cache_empty_results"`
	NavigationQPS       float64 `mapstructure:"navigation_qps"`
	ProfileURLTemplate  string  `mapstructure:"profile_url_template"`
}

// Session backends.
const (
	BackendChromedp = "chromedp"
	BackendStatic   = "static"
)

// SessionConfig selects and tunes the page session backend.
type SessionConfig struct {
	Backend       string `mapstructure:"backend"`
	ChromePath    string `mapstructure:"chrome_path"`
	UserAgent     string `mapstructure:"user_agent"`
	WindowWidth   int    `mapstructure:"window_width"`
	WindowHeight  int    `mapstructure:"window_height"`
	DisableImages bool   `mapstructure:"disable_images"`
}

// Cache backends.
const (
	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// CacheConfig selects where the cache is persisted.
type CacheConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings for the redis cache backend.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ProgressConfig controls scan progress reporting.
type ProgressConfig struct {
	// Console prints a line per finished profile to stderr.
	Console    bool `mapstructure:"console"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FINDER")
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
	v.SetDefault("verbose", false)
	v.SetDefault("scrape.workers", 3)
	v.SetDefault("scrape.task_timeout_seconds", 30)
	v.SetDefault("scrape.reveal_wait_seconds", 8)
	v.SetDefault("scrape.poll_interval_seconds", 0.25)
	v.SetDefault("scrape.page_load_timeout_seconds", 15)
	v.SetDefault("scrape.release_grace_seconds", 5)
	v.SetDefault("scrape.cache_empty_results", true)
	v.SetDefault("scrape.navigation_qps", 0)
	v.SetDefault("scrape.profile_url_template", "https://www.twitch.tv/%s/about")
	v.SetDefault("session.backend", BackendChromedp)
	v.SetDefault("session.chrome_path", "")
	v.SetDefault("session.user_agent", "")
	v.SetDefault("session.window_width", 1400)
	v.SetDefault("session.window_height", 900)
	v.SetDefault("session.disable_images", true)
	v.SetDefault("cache.backend", CacheFile)
	v.SetDefault("cache.path", "discord_cache.json")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key", "community-finder:cache")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("progress.console", true)
	v.SetDefault("progress.buffer_size", 1024)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("scrape.workers must be > 0")
	}
	if c.Scrape.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.task_timeout_seconds must be > 0")
	}
	if c.Scrape.RevealWaitSeconds < 0 {
		return fmt.Errorf("scrape.reveal_wait_seconds must be >= 0")
	}
	if c.Scrape.RevealWaitSeconds > 0 && c.Scrape.PollIntervalSeconds <= 0 {
		return fmt.Errorf("scrape.poll_interval_seconds must be > 0")
	}
	if c.Scrape.PageLoadTimeoutSecs < 0 || c.Scrape.ReleaseGraceSeconds < 0 || c.Scrape.NavigationQPS < 0 {
		return fmt.Errorf("scrape timeouts and rates must be >= 0")
	}
	if strings.Count(c.Scrape.ProfileURLTemplate, "%s") != 1 {
		return fmt.Errorf("scrape.profile_url_template must contain exactly one %%s")
	}
	switch c.Session.Backend {
	case BackendChromedp, BackendStatic:
	default:
		return fmt.Errorf("session.backend must be %q or %q, got %q", BackendChromedp, BackendStatic, c.Session.Backend)
	}
	if c.Session.WindowWidth < 0 || c.Session.WindowHeight < 0 {
		return fmt.Errorf("session.window_width and session.window_height must be >= 0")
	}
	switch c.Cache.Backend {
	case CacheFile:
		if strings.TrimSpace(c.Cache.Path) == "" {
			return fmt.Errorf("cache.path must be set for the file backend")
		}
	case CacheRedis:
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address must be set for the redis backend")
		}
	case CacheMemory:
	default:
		return fmt.Errorf("cache.backend must be one of file, redis, memory, got %q", c.Cache.Backend)
	}
	if c.Progress.BufferSize < 0 {
		return fmt.Errorf("progress.buffer_size must be >= 0")
	}
	return nil
}

// TaskTimeout returns the per-task deadline.
func (s ScrapeConfig) TaskTimeout() time.Duration { return seconds(s.TaskTimeoutSeconds) }

// RevealWait returns the reveal wait window.
func (s ScrapeConfig) RevealWait() time.Duration { return seconds(s.RevealWaitSeconds) }

// PollInterval returns the reveal wait poll period.
func (s ScrapeConfig) PollInterval() time.Duration { return seconds(s.PollIntervalSeconds) }

// PageLoadTimeout returns the navigation deadline.
func (s ScrapeConfig) PageLoadTimeout() time.Duration { return seconds(s.PageLoadTimeoutSecs) }

// ReleaseGrace returns how long a timed out task may hold its slot.
func (s ScrapeConfig) ReleaseGrace() time.Duration { return seconds(s.ReleaseGraceSeconds) }

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
