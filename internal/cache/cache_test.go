package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwolfe/gitea-inbox/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFreshIsStrict(t *testing.T) {
	now := time.Now()
	ttl := 60

	assert.True(t, Fresh(now.UnixMilli(), ttl, now))
	assert.True(t, Fresh(now.UnixMilli()-int64(ttl)*60_000+1, ttl, now))
	// Exactly at the boundary the entry is already stale.
	assert.False(t, Fresh(now.UnixMilli()-int64(ttl)*60_000, ttl, now))
	assert.False(t, Fresh(now.UnixMilli()-int64(ttl)*60_000-1, ttl, now))
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	c := New(openStore(t), "dataset")

	var absent []string
	_, ok, err := c.Load(ctx, &absent)
	require.NoError(t, err)
	assert.False(t, ok)

	before := time.Now().UnixMilli()
	require.NoError(t, c.Save(ctx, []string{"a", "b"}))

	var loaded []string
	ts, ok, err := c.Load(ctx, &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, loaded)
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, time.Now().UnixMilli())

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Load(ctx, &loaded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	c := New(openStore(t), "dataset")

	require.NoError(t, c.Save(ctx, 1))
	require.NoError(t, c.Save(ctx, 2))

	var value int
	_, ok, err := c.Load(ctx, &value)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, value)
}

func TestCachesAreIndependentPerKey(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	a := New(st, "inbox:https://one.example")
	b := New(st, "inbox:https://two.example")

	require.NoError(t, a.Save(ctx, "one"))

	var value string
	_, ok, err := b.Load(ctx, &value)
	require.NoError(t, err)
	assert.False(t, ok)
}
