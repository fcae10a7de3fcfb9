package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/cache"
	"github.com/JakeFAU/community-finder/internal/config"
	"github.com/JakeFAU/community-finder/internal/scrape"
)

type fakeScanner struct {
	links map[string][]string
	err   error
	got   []string
}

func (s *fakeScanner) ScanBatch(_ context.Context, ids []string) (scrape.Batch, error) {
	s.got = ids
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		links, ok := s.links[id]
		if !ok {
			links = []string{}
		}
		out[id] = links
	}
	return scrape.Batch{ID: "test-batch", Links: out}, s.err
}

type fakeApp struct {
	scanner *fakeScanner
	store   *cache.Store
	closed  bool
	cfg     config.Config
}

func (a *fakeApp) Close()                 { a.closed = true }
func (a *fakeApp) GetLogger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) GetCache() *cache.Store { return a.store }
func (a *fakeApp) GetScanner() Scanner    { return a.scanner }

func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	original := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, stderr bytes.Buffer
	root, closeApp := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	closeApp()
	return out.String(), err
}

func TestScanTable(t *testing.T) {
	fake := &fakeApp{scanner: &fakeScanner{links: map[string][]string{
		"alpha": {"https://discord.gg/abc", "https://discord.com/invite/xyz"},
	}}}
	withFakeApp(t, fake)

	out, err := execute(t, "scan", "alpha", "beta", "alpha", "--no-color")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, fake.scanner.got)
	assert.Contains(t, out, "discord.gg/abc (+1)")
	assert.Contains(t, out, "beta")
	assert.True(t, fake.closed)
}

func TestScanRawAndFile(t *testing.T) {
	fake := &fakeApp{scanner: &fakeScanner{links: map[string][]string{
		"fromfile": {"https://discordapp.com/invite/old"},
	}}}
	withFakeApp(t, fake)

	path := filepath.Join(t.TempDir(), "logins.txt")
	require.NoError(t, os.WriteFile(path, []byte("# streamers\nfromfile\n\n  second  \n"), 0o600))

	out, err := execute(t, "scan", "--file", path, "--raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"fromfile", "second"}, fake.scanner.got)
	assert.Equal(t, "fromfile:\n  https://discordapp.com/invite/old\nsecond:\n  -\n", out)
}

func TestScanJSON(t *testing.T) {
	fake := &fakeApp{scanner: &fakeScanner{links: map[string][]string{"x": {"discord.gg/x"}}}}
	withFakeApp(t, fake)

	out, err := execute(t, "scan", "x", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"login": "x"`)
	assert.Contains(t, out, `"primary": "discord.gg/x"`)
}

func TestScanInterruptedStillPrints(t *testing.T) {
	fake := &fakeApp{scanner: &fakeScanner{err: errors.New("scan interrupted: context canceled")}}
	withFakeApp(t, fake)

	out, err := execute(t, "scan", "someone", "--raw")
	require.Error(t, err)
	assert.Contains(t, out, "someone:")
	assert.True(t, fake.closed, "app is closed even when the command fails")
}

func TestScanRequiresLogins(t *testing.T) {
	withFakeApp(t, &fakeApp{scanner: &fakeScanner{}})

	_, err := execute(t, "scan")
	require.Error(t, err)
}

func TestVerboseFlagOverridesConfig(t *testing.T) {
	fake := &fakeApp{scanner: &fakeScanner{}}
	withFakeApp(t, fake)

	_, err := execute(t, "--verbose", "scan", "a")
	require.NoError(t, err)
	assert.True(t, fake.cfg.Verbose)
}

func TestCacheShow(t *testing.T) {
	store := cache.New(nil)
	store.Set("cached", []string{"https://discord.gg/cached"}, true)
	withFakeApp(t, &fakeApp{scanner: &fakeScanner{}, store: store})

	out, err := execute(t, "cache", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cached")
	assert.Contains(t, out, "https://discord.gg/cached")
	assert.Contains(t, out, "fresh")
}

func TestBadConfigFileFails(t *testing.T) {
	withFakeApp(t, &fakeApp{scanner: &fakeScanner{}})

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "scan", "a")
	require.Error(t, err)
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
