package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-finder/internal/clock"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

type fakePersister struct {
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (p *fakePersister) Load(context.Context) ([]byte, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.data == nil {
		return nil, ErrNotFound
	}
	return p.data, nil
}

func (p *fakePersister) Save(_ context.Context, data []byte) error {
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.data = append([]byte(nil), data...)
	return nil
}

func TestNonEmptyEntryLivesSevenDays(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	s := New(nil, WithClock(clk))
	require.True(t, s.Set("Streamer", []string{"https://discord.gg/a"}, true))

	clk.Set(epoch.Add(DefaultLongTTL - time.Second))
	links, ok := s.Get("streamer")
	require.True(t, ok)
	assert.Equal(t, []string{"https://discord.gg/a"}, links)

	clk.Set(epoch.Add(DefaultLongTTL))
	_, ok = s.Get("STREAMER")
	assert.False(t, ok, "entry must expire at the boundary")
}

func TestEmptyEntryLivesFifteenMinutes(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	s := New(nil, WithClock(clk))
	s.Set("empty", nil, true)
	s.Set("full", []string{"https://discord.gg/x"}, true)

	clk.Set(epoch.Add(DefaultShortTTL - time.Second))
	links, ok := s.Get("empty")
	require.True(t, ok)
	assert.Empty(t, links)
	assert.NotNil(t, links)

	clk.Set(epoch.Add(DefaultShortTTL))
	_, ok = s.Get("empty")
	assert.False(t, ok)
	_, ok = s.Get("full")
	assert.True(t, ok, "non-empty entry captured at the same instant is still fresh")
}

func TestSetSkipsEmptyWhenDisabled(t *testing.T) {
	t.Parallel()

	s := New(nil)
	assert.False(t, s.Set("nobody", []string{}, false))
	_, ok := s.Get("nobody")
	assert.False(t, ok)
	assert.True(t, s.Set("somebody", []string{"discord.gg/x"}, false))
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.Set("a", []string{"one"}, true)
	links, _ := s.Get("a")
	links[0] = "mutated"
	again, _ := s.Get("a")
	assert.Equal(t, []string{"one"}, again)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	p := &fakePersister{}
	s := New(p, WithClock(clk))
	s.Set("Alpha", []string{"https://discord.gg/alpha"}, true)
	s.Set("beta", nil, true)
	require.NoError(t, s.Persist(context.Background()))

	var wire map[string]map[string]any
	require.NoError(t, json.Unmarshal(p.data, &wire))
	require.Contains(t, wire, "alpha")
	assert.InDelta(t, float64(epoch.Unix()), wire["alpha"]["ts"], 0.001)
	assert.Equal(t, []any{"https://discord.gg/alpha"}, wire["alpha"]["links"])
	assert.Equal(t, []any{}, wire["beta"]["links"])

	reloaded := New(p, WithClock(clk))
	reloaded.Load(context.Background())
	links, ok := reloaded.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"https://discord.gg/alpha"}, links)
	assert.Equal(t, 2, reloaded.Len())
}

func TestLoadTreatsInvalidEntriesAsAbsent(t *testing.T) {
	t.Parallel()

	ts := float64(epoch.Unix())
	raw := map[string]any{
		"good":       map[string]any{"ts": ts, "links": []string{"discord.gg/ok"}},
		"badts":      map[string]any{"ts": "yesterday", "links": []string{}},
		"badlinks":   map[string]any{"ts": ts, "links": []any{1, 2}},
		"missing":    map[string]any{"links": []string{}},
		"notobject":  "hello",
		"nulled":     nil,
		"UpperCased": map[string]any{"ts": ts, "links": []string{"discord.gg/up"}},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	p := &fakePersister{data: data}
	s := New(p, WithClock(clock.NewManual(epoch.Add(time.Minute))))
	s.Load(context.Background())

	_, ok := s.Get("good")
	assert.True(t, ok)
	for _, id := range []string{"badts", "badlinks", "missing", "notobject", "nulled", "uppercased"} {
		_, ok := s.Get(id)
		assert.False(t, ok, id)
	}

	s.Set("badts", []string{"discord.gg/fresh"}, true)
	require.NoError(t, s.Persist(context.Background()))

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(p.data, &wire))
	assert.Len(t, wire, len(raw), "invalid entries are written back, never pruned")
	assert.JSONEq(t, `"hello"`, string(wire["notobject"]))
	fresh, ok := decodeEntry(wire["badts"])
	require.True(t, ok)
	assert.Equal(t, []string{"discord.gg/fresh"}, fresh.Links)
}

func TestLoadCorruptOrMissingIsEmpty(t *testing.T) {
	t.Parallel()

	for name, p := range map[string]*fakePersister{
		"missing": {},
		"corrupt": {data: []byte("{not json")},
		"array":   {data: []byte(`[1,2,3]`)},
		"error":   {loadErr: errors.New("disk on fire")},
	} {
		s := New(p)
		s.Set("stale", []string{"x"}, true)
		s.Load(context.Background())
		assert.Zero(t, s.Len(), name)
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	p := &fakePersister{saveErr: errors.New("read-only")}
	s := New(p)
	s.Set("a", []string{"discord.gg/a"}, true)

	err := s.Persist(context.Background())
	require.ErrorIs(t, err, ErrPersist)
	links, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"discord.gg/a"}, links)
}

func TestPersistWithoutPersisterIsNoop(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.Set("a", nil, true)
	require.NoError(t, s.Persist(context.Background()))
	s.Load(context.Background())
	assert.Zero(t, s.Len())
}

func TestEntriesSnapshot(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	s := New(nil, WithClock(clk))
	s.Set("b", nil, true)
	s.Set("a", []string{"discord.gg/a"}, true)
	clk.Advance(time.Hour)

	snaps := s.Entries()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].ID)
	assert.True(t, snaps[0].Fresh)
	assert.Equal(t, epoch.Add(DefaultLongTTL), snaps[0].ExpiresAt)
	assert.Equal(t, "b", snaps[1].ID)
	assert.False(t, snaps[1].Fresh)
}

func TestEpochConversion(t *testing.T) {
	t.Parallel()

	got := fromEpoch(toEpoch(epoch.Add(500 * time.Millisecond)))
	assert.WithinDuration(t, epoch.Add(500*time.Millisecond), got, time.Microsecond)
}
