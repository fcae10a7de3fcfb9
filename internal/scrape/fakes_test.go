package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/JakeFAU/community-finder/internal/session"
)

// page describes how a fake session behaves for one identifier.
type page struct {
	navErr    error
	// blockNav makes Navigate wait for its context.
	blockNav bool
	// hangNav makes Navigate ignore its context until release is closed.
	hangNav chan struct{}
	// contents is served by successive Content calls; the last one repeats.
	contents   []string
	contentErr error
	anchors    []string
	anchorErr  error
	panicMsg   string
}

type fakeProvider struct {
	mu      sync.Mutex
	pages   map[string]page
	created int
	closed  int
	live    int
	maxLive int
	// overlap is set when a session was created while another was open.
	overlap bool
	// onCreate, when set, runs after each successful Create.
	onCreate func()
}

func newFakeProvider(pages map[string]page) *fakeProvider {
	return &fakeProvider{pages: pages}
}

func (p *fakeProvider) Create(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.created++
	if p.live > 0 {
		p.overlap = true
	}
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	onCreate := p.onCreate
	p.mu.Unlock()
	s := &fakeSession{provider: p}
	if onCreate != nil {
		onCreate()
	}
	return s, nil
}

func (p *fakeProvider) stats() (created, closed, live, maxLive int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.closed, p.live, p.maxLive
}

func (p *fakeProvider) pageFor(url string) page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pg := range p.pages {
		if strings.Contains(url, "/"+id+"/") {
			return pg
		}
	}
	return page{}
}

// failingProvider fails every Create.
type failingProvider struct {
	err error
}

func (p failingProvider) Create(context.Context) (session.Session, error) {
	return nil, p.err
}

type fakeSession struct {
	provider *fakeProvider
	mu       sync.Mutex
	page     page
	reads    int
	closed   bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	pg := s.provider.pageFor(url)
	s.mu.Lock()
	s.page = pg
	s.mu.Unlock()

	if pg.panicMsg != "" {
		panic(pg.panicMsg)
	}
	if pg.hangNav != nil {
		<-pg.hangNav
		return errors.New("navigation aborted")
	}
	if pg.blockNav {
		<-ctx.Done()
		return ctx.Err()
	}
	return pg.navErr
}

func (s *fakeSession) Content(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page.contentErr != nil {
		return "", s.page.contentErr
	}
	if len(s.page.contents) == 0 {
		return "", nil
	}
	i := s.reads
	if i >= len(s.page.contents) {
		i = len(s.page.contents) - 1
	}
	s.reads++
	return s.page.contents[i], nil
}

func (s *fakeSession) Anchors(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.anchors, s.page.anchorErr
}

func (s *fakeSession) Eval(context.Context, string) error {
	return session.ErrUnsupported
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.provider.mu.Lock()
	s.provider.closed++
	s.provider.live--
	s.provider.mu.Unlock()
	return nil
}
