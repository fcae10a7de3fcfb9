package scrape

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults used by DefaultConfig.
const (
	DefaultWorkers            = 3
	DefaultTaskTimeout        = 30 * time.Second
	DefaultRevealWait         = 8 * time.Second
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultPageLoadTimeout    = 15 * time.Second
	DefaultReleaseGrace       = 5 * time.Second
	DefaultProfileURLTemplate = "https://www.twitch.tv/%s/about"
)

// Config controls the pool and each task.
type Config struct {
	Workers         int
	TaskTimeout     time.Duration
	RevealWait      time.Duration
	PollInterval    time.Duration
	PageLoadTimeout time.Duration
	// ReleaseGrace is how long a timed out task keeps its pool slot while
	// waiting for its session to close.
	ReleaseGrace time.Duration
	CacheEmpty   bool
	// NavigationQPS paces navigations per host; zero disables pacing.
	NavigationQPS float64
	// ProfileURLTemplate turns an identifier into a URL via fmt.Sprintf.
	ProfileURLTemplate string
}

// DefaultConfig returns the stock scrape settings.
func DefaultConfig() Config {
	return Config{
		Workers:            DefaultWorkers,
		TaskTimeout:        DefaultTaskTimeout,
		RevealWait:         DefaultRevealWait,
		PollInterval:       DefaultPollInterval,
		PageLoadTimeout:    DefaultPageLoadTimeout,
		ReleaseGrace:       DefaultReleaseGrace,
		CacheEmpty:         true,
		ProfileURLTemplate: DefaultProfileURLTemplate,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task timeout must be positive, got %s", c.TaskTimeout)
	}
	if c.RevealWait < 0 {
		return fmt.Errorf("reveal wait must not be negative, got %s", c.RevealWait)
	}
	if c.RevealWait > 0 && c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PageLoadTimeout < 0 {
		return fmt.Errorf("page load timeout must not be negative, got %s", c.PageLoadTimeout)
	}
	if c.ReleaseGrace < 0 {
		return fmt.Errorf("release grace must not be negative, got %s", c.ReleaseGrace)
	}
	if c.NavigationQPS < 0 {
		return fmt.Errorf("navigation qps must not be negative, got %f", c.NavigationQPS)
	}
	if strings.Count(c.ProfileURLTemplate, "%s") != 1 {
		return fmt.Errorf("profile url template must contain exactly one %%s, got %q", c.ProfileURLTemplate)
	}
	return nil
}

// ProfileURL returns the page to scrape for id.
func (c Config) ProfileURL(id string) string {
	return fmt.Sprintf(c.ProfileURLTemplate, url.PathEscape(id))
}

func (c Config) pageLoadTimeout() time.Duration {
	if c.PageLoadTimeout <= 0 {
		return c.TaskTimeout
	}
	return c.PageLoadTimeout
}
