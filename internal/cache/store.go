// Package cache keeps scrape results per identifier with a TTL chosen by the
// content captured at write time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/clock"
)

// Default TTLs. Empty results go stale sooner because a link is often added
// to a profile after the first check.
const (
	DefaultLongTTL  = 7 * 24 * time.Hour
	DefaultShortTTL = 15 * time.Minute
)

var (
	// ErrNotFound is returned by a Persister when nothing has been saved yet.
	ErrNotFound = errors.New("cache: no persisted data")
	// ErrPersist wraps failures to save the cache.
	ErrPersist = errors.New("cache: persist failed")
)

// Persister loads and saves the serialized cache as one whole object.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Entry is one captured scrape result.
type Entry struct {
	CapturedAt time.Time
	Links      []string
}

// wireEntry is the persisted shape: {"ts": <epoch seconds>, "links": [...]}.
type wireEntry struct {
	TS    *float64  `json:"ts"`
	Links *[]string `json:"links"`
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for capture times and expiry.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL overrides the TTLs for non-empty and empty entries.
func WithTTL(long, short time.Duration) Option {
	return func(s *Store) {
		s.longTTL = long
		s.shortTTL = short
	}
}

// Store maps lowercase identifiers to entries. It is not safe for concurrent
// use; the orchestrator owns it.
type Store struct {
	persister Persister
	clock     clock.Clock
	logger    *zap.Logger
	longTTL   time.Duration
	shortTTL  time.Duration

	entries map[string]Entry
	// opaque holds persisted values that did not decode. They are never
	// served but are written back so the persisted object is not pruned.
	opaque map[string]json.RawMessage
}

// New creates an empty Store. A nil persister keeps the cache in memory only.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		clock:     clock.System{},
		logger:    zap.NewNop(),
		longTTL:   DefaultLongTTL,
		shortTTL:  DefaultShortTTL,
		entries:   make(map[string]Entry),
		opaque:    make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the persisted one. Missing or
// corrupt data leaves the cache empty and is only logged.
func (s *Store) Load(ctx context.Context) {
	s.entries = make(map[string]Entry)
	s.opaque = make(map[string]json.RawMessage)
	if s.persister == nil {
		return
	}
	data, err := s.persister.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("no persisted cache, starting empty")
		return
	case err != nil:
		s.logger.Warn("cache load failed, starting empty", zap.Error(err))
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("cache data is not a JSON object, starting empty", zap.Error(err))
		return
	}
	for key, value := range raw {
		entry, ok := decodeEntry(value)
		if !ok || key != strings.ToLower(key) {
			s.opaque[key] = value
			continue
		}
		s.entries[key] = entry
	}
	s.logger.Debug("cache loaded", zap.Int("entries", len(s.entries)), zap.Int("invalid", len(s.opaque)))
}

func decodeEntry(value json.RawMessage) (Entry, bool) {
	var w wireEntry
	if err := json.Unmarshal(value, &w); err != nil {
		return Entry{}, false
	}
	if w.TS == nil || w.Links == nil {
		return Entry{}, false
	}
	return Entry{CapturedAt: fromEpoch(*w.TS), Links: *w.Links}, true
}

// Get returns the cached links for id when the entry is still fresh.
func (s *Store) Get(id string) ([]string, bool) {
	entry, ok := s.entries[strings.ToLower(id)]
	if !ok || !s.fresh(entry) {
		return nil, false
	}
	return append([]string{}, entry.Links...), true
}

// Set records links for id. When cacheEmpty is false an empty result is not
// written. It reports whether the entry was written.
func (s *Store) Set(id string, links []string, cacheEmpty bool) bool {
	if !cacheEmpty && len(links) == 0 {
		return false
	}
	key := strings.ToLower(id)
	s.entries[key] = Entry{
		CapturedAt: s.clock.Now(),
		Links:      append([]string{}, links...),
	}
	delete(s.opaque, key)
	return true
}

// TTL returns the lifetime of e, fixed by whether it held links when captured.
func (s *Store) TTL(e Entry) time.Duration {
	if len(e.Links) == 0 {
		return s.shortTTL
	}
	return s.longTTL
}

func (s *Store) fresh(e Entry) bool {
	return s.clock.Now().Sub(e.CapturedAt) < s.TTL(e)
}

// Persist writes the whole cache through the persister. Callers treat the
// error as non-fatal; the in-memory state stays valid either way.
func (s *Store) Persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	data, err := s.encode()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.persister.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.entries)+len(s.opaque))
	for key, value := range s.opaque {
		out[key] = value
	}
	for key, entry := range s.entries {
		ts := toEpoch(entry.CapturedAt)
		links := entry.Links
		if links == nil {
			links = []string{}
		}
		value, err := json.Marshal(wireEntry{TS: &ts, Links: &links})
		if err != nil {
			return nil, fmt.Errorf("marshal entry %q: %w", key, err)
		}
		out[key] = value
	}
	return json.MarshalIndent(out, "", "  ")
}

// Snapshot describes one cached entry for inspection.
type Snapshot struct {
	ID        string
	Entry     Entry
	ExpiresAt time.Time
	Fresh     bool
}

// Entries returns every decoded entry sorted by identifier.
func (s *Store) Entries() []Snapshot {
	out := make([]Snapshot, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Snapshot{
			ID:        id,
			Entry:     Entry{CapturedAt: e.CapturedAt, Links: append([]string{}, e.Links...)},
			ExpiresAt: e.CapturedAt.Add(s.TTL(e)),
			Fresh:     s.fresh(e),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of decoded entries, fresh or not.
func (s *Store) Len() int {
	return len(s.entries)
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
