package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-finder/internal/cache"
)

func TestNewRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(Config{Address: addr})
	assert.Error(t, err)
}

func TestStoreLoadSave(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := New(Config{Address: mr.Addr(), Key: "finder:test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.Save(context.Background(), []byte(`{"a":{"ts":1,"links":[]}}`)))
	got, err := mr.Get("finder:test")
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"ts":1,"links":[]}}`, got)
	assert.False(t, mr.Exists(DefaultKey))

	data, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"ts":1,"links":[]}}`, string(data))
}

func TestStoreDefaultKey(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := New(Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := cache.New(s)
	c.Set("Streamer", []string{"https://discord.gg/x"}, true)
	require.NoError(t, c.Persist(context.Background()))
	assert.True(t, mr.Exists(DefaultKey))

	reloaded := cache.New(s)
	reloaded.Load(context.Background())
	links, ok := reloaded.Get("streamer")
	require.True(t, ok)
	assert.Equal(t, []string{"https://discord.gg/x"}, links)
}

func TestStoreSaveFailsWhenServerGone(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := New(Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mr.Close()
	assert.Error(t, s.Save(context.Background(), []byte(`{}`)))
}
