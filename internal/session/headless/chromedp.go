// Package headless provides sessions backed by headless Chrome via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/session"
)

const (
	defaultWindowWidth  = 1400
	defaultWindowHeight = 900

	contentScript = `document.documentElement ? document.documentElement.outerHTML : ""`
	anchorsScript = `Array.from(document.querySelectorAll("a[href]"), a => a.href)`
)

// Config controls how browsers are launched.
type Config struct {
	ExecPath      string
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	DisableImages bool
}

// Provider launches one headless browser per session so that no cookies or
// storage leak between tasks.
type Provider struct {
	cfg    Config
	opts   []chromedp.ExecAllocatorOption
	logger *zap.Logger
}

// New validates cfg and returns a Provider.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.WindowWidth == 0 {
		cfg.WindowWidth = defaultWindowWidth
	}
	if cfg.WindowHeight == 0 {
		cfg.WindowHeight = defaultWindowHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, opts: allocatorOptions(cfg), logger: logger}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Create starts a browser and opens a tab. Cancelling ctx while the browser
// is starting aborts the launch.
func (p *Provider) Create(ctx context.Context) (session.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	stopForward := forwardCancel(ctx, allocCancel)
	// The first Run ties the browser lifetime to tabCtx, so it must not get a
	// derived context.
	err := chromedp.Run(tabCtx, p.setupAction())
	stopForward()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      p.logger,
	}, nil
}

func (p *Provider) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if p.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// Session is a single browser tab in its own browser process.
type Session struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Navigate loads url and waits for the load event or the ctx deadline.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Content returns the outer HTML of the document element.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.Evaluate(contentScript, &html)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Anchors returns the resolved href of every anchor element.
func (s *Session) Anchors(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := s.run(ctx, chromedp.Evaluate(anchorsScript, &hrefs)); err != nil {
		return nil, fmt.Errorf("enumerate anchors: %w", err)
	}
	return hrefs, nil
}

// Eval runs script and discards its result.
func (s *Session) Eval(ctx context.Context, script string) error {
	if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("eval script: %w", err)
	}
	return nil
}

// Close shuts the browser down and releases the allocator.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.tabCtx)
		s.tabCancel()
		s.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("browser close returned error", zap.Error(err))
			s.closeErr = fmt.Errorf("close browser: %w", err)
		}
	})
	return s.closeErr
}

// run executes actions on the tab while honoring ctx cancellation and
// deadline. Cancelling the derived context aborts the actions only, the tab
// stays open.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
