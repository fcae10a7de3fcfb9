// Package static provides sessions that fetch pages over plain HTTP with
// Colly. No JavaScript runs, so client-rendered invites are only found when
// the server embeds them in the initial HTML.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/community-finder/internal/session"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Provider hands out Colly-backed sessions sharing one connection pool.
type Provider struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{cfg: cfg, transport: newHTTPTransport()}
}

// Create returns a session with its own collector and cookie jar.
func (p *Provider) Create(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create static session: %w", err)
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if p.cfg.UserAgent != "" {
		c.UserAgent = p.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = true
	c.WithTransport(p.transport)
	return &Session{collector: c, timeout: p.cfg.Timeout}, nil
}

// Session holds the last page fetched by its collector.
type Session struct {
	collector *colly.Collector
	timeout   time.Duration

	mu      sync.RWMutex
	pageURL *url.URL
	body    []byte
	closed  bool
}

// Navigate fetches url. The ctx deadline, when earlier than the configured
// timeout, bounds the request.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	if s.isClosed() {
		return fmt.Errorf("navigate %s: session closed", rawURL)
	}
	c := s.collector.Clone()
	c.SetRequestTimeout(s.requestTimeout(ctx))

	var fetchErr error
	var fetchMu sync.Mutex
	c.OnResponse(func(r *colly.Response) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.pageURL = r.Request.URL
		s.body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchMu.Lock()
		fetchErr = err
		fetchMu.Unlock()
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("navigate %s: %w", rawURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("navigate %s: %w", rawURL, err)
		}
		fetchMu.Lock()
		defer fetchMu.Unlock()
		if fetchErr != nil {
			return fmt.Errorf("navigate %s: %w", rawURL, fetchErr)
		}
		return nil
	}
}

func (s *Session) requestTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < s.timeout {
			return remaining
		}
	}
	return s.timeout
}

// Content returns the body of the last fetched page.
func (s *Session) Content(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.body == nil {
		return "", session.ErrNoPage
	}
	return string(s.body), nil
}

// Anchors parses the last fetched page and returns absolute hrefs.
func (s *Session) Anchors(_ context.Context) ([]string, error) {
	s.mu.RLock()
	body, base := s.body, s.pageURL
	s.mu.RUnlock()
	if body == nil {
		return nil, session.ErrNoPage
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		hrefs = append(hrefs, resolve(base, href))
	})
	return hrefs, nil
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Eval is not available without a browser.
func (s *Session) Eval(_ context.Context, _ string) error {
	return session.ErrUnsupported
}

// Close drops the cached page.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.body = nil
	s.pageURL = nil
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
