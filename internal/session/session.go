// Package session defines the narrow page-rendering capability the scraper
// depends on. Backends live in subpackages.
package session

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by backends that cannot perform an optional step.
var ErrUnsupported = errors.New("session: operation not supported")

// ErrNoPage is returned when content is requested before any navigation.
var ErrNoPage = errors.New("session: no page loaded")

// Session is an isolated rendering context owned by exactly one task.
type Session interface {
	// Navigate loads url. A context deadline bounds the page load.
	Navigate(ctx context.Context, url string) error
	// Content returns the currently rendered document.
	Content(ctx context.Context) (string, error)
	// Anchors returns the href of every anchor in the rendered document.
	Anchors(ctx context.Context) ([]string, error)
	// Eval runs script in the page. Best effort.
	Eval(ctx context.Context, script string) error
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Provider creates sessions. Every call returns a fresh, unshared session.
type Provider interface {
	Create(ctx context.Context) (Session, error)
}
