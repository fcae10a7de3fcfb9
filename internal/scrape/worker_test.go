package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runOne(t *testing.T, cfg Config, pg page) (Result, *fakeProvider) {
	t.Helper()
	provider := newFakeProvider(map[string]page{"who": pg})
	w := NewWorker(provider, cfg, nil)
	return w.Run(context.Background(), Task{Identifier: "who", URL: cfg.ProfileURL("who")}), provider
}

func TestWorkerNavigationTimeoutStillExtracts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PageLoadTimeout = 50 * time.Millisecond
	res, provider := runOne(t, cfg, page{
		blockNav: true,
		contents: []string{`join https://discord.gg/late`},
	})

	assert.Equal(t, StateCompleted, res.State)
	assert.ErrorIs(t, res.Err, ErrNavigationTimeout)
	assert.Equal(t, []string{"https://discord.gg/late"}, res.Links)
	_, closed, _, _ := provider.stats()
	assert.Equal(t, 1, closed)
}

func TestWorkerRevealWaitStopsOnMarker(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RevealWait = 2 * time.Second
	cfg.PollInterval = 10 * time.Millisecond

	start := time.Now()
	res, _ := runOne(t, cfg, page{contents: []string{
		"<div>loading</div>",
		"<div>loading</div>",
		`<div><a href="https://discord.com/invite/abc">Discord</a></div>`,
	}})

	assert.Less(t, time.Since(start), time.Second, "marker should end the wait early")
	assert.Equal(t, []string{"https://discord.com/invite/abc"}, res.Links)
}

func TestWorkerRevealWaitExpiresWithLastContent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RevealWait = 60 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond

	start := time.Now()
	res, _ := runOne(t, cfg, page{
		contents: []string{"no invite here"},
		anchors:  []string{"https://discordapp.com/invite/fromanchor", "https://example.com"},
	})

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, StateCompleted, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"https://discordapp.com/invite/fromanchor"}, res.Links)
}

func TestWorkerContentFailureShrinksCandidates(t *testing.T) {
	t.Parallel()

	res, _ := runOne(t, testConfig(), page{
		contentErr: errors.New("target closed"),
		anchors:    []string{"https://discord.gg/onlyanchor"},
	})
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{"https://discord.gg/onlyanchor"}, res.Links)
}

func TestWorkerNothingReadableFails(t *testing.T) {
	t.Parallel()

	res, provider := runOne(t, testConfig(), page{
		contentErr: errors.New("target closed"),
		anchorErr:  errors.New("target closed"),
	})
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrExtraction)
	assert.Equal(t, []string{}, res.Links)
	_, closed, _, _ := provider.stats()
	assert.Equal(t, 1, closed)
}

func TestWorkerCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider(nil)
	w := NewWorker(provider, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := w.Run(ctx, Task{Identifier: "late"})
	assert.Equal(t, StateAbandoned, res.State)
	assert.False(t, res.Cacheable())
	created, _, _, _ := provider.stats()
	assert.Zero(t, created)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "acquire_failed", StateAcquireFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"zero workers":       func(c *Config) { c.Workers = 0 },
		"zero task timeout":  func(c *Config) { c.TaskTimeout = 0 },
		"negative reveal":    func(c *Config) { c.RevealWait = -time.Second },
		"zero poll":          func(c *Config) { c.PollInterval = 0 },
		"negative page load": func(c *Config) { c.PageLoadTimeout = -time.Second },
		"negative grace":     func(c *Config) { c.ReleaseGrace = -time.Second },
		"negative qps":       func(c *Config) { c.NavigationQPS = -1 },
		"template no verb":   func(c *Config) { c.ProfileURLTemplate = "https://www.twitch.tv/about" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProfileURL(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, "https://www.twitch.tv/some_one/about", cfg.ProfileURL("some_one"))
	assert.Equal(t, "https://www.twitch.tv/a%2Fb/about", cfg.ProfileURL("a/b"))

	cfg.PageLoadTimeout = 0
	assert.Equal(t, cfg.TaskTimeout, cfg.pageLoadTimeout())
}
