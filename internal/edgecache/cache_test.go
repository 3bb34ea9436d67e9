package edgecache

import (
	"context"
	"testing"
	"time"

	"github.com/siriyd/SMART-CDN/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*Cache, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return New("edge-us-east", s, time.Hour, zap.NewNop()), s
}

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()

	t.Run("set then get returns the payload", func(t *testing.T) {
		c, _ := newTestCache(t)

		err := c.Set(ctx, "v1", map[string]interface{}{"title": "intro"}, 30*time.Minute)
		require.NoError(t, err)

		entry, hit, err := c.Get(ctx, "v1")
		require.NoError(t, err)
		require.True(t, hit)
		assert.Equal(t, "intro", entry.Data["title"])
		assert.Equal(t, "edge-us-east", entry.EdgeID)
		assert.Equal(t, 1800, entry.TTLSeconds)
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		c, _ := newTestCache(t)

		entry, hit, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, entry)
	})

	t.Run("corrupt payload is deleted and reported as a miss", func(t *testing.T) {
		c, s := newTestCache(t)
		key := ContentKey("edge-us-east", "broken")
		require.NoError(t, s.Set(ctx, key, "{not json", time.Hour))

		entry, hit, err := c.Get(ctx, "broken")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, entry)

		exists, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, "corrupt entry should be purged")
	})

	t.Run("non-positive ttl uses the default", func(t *testing.T) {
		c, _ := newTestCache(t)

		require.NoError(t, c.Set(ctx, "v1", nil, 0))

		ttl, ok, err := c.TTL(ctx, "v1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)
	})
}

func TestCache_DeleteExists(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.Set(ctx, "v1", nil, time.Hour))

	exists, err := c.Exists(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := c.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err = c.Exists(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = c.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, deleted, "double delete reports absence")
}

func TestCache_UpdateTTL(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes an existing entry", func(t *testing.T) {
		c, _ := newTestCache(t)
		require.NoError(t, c.Set(ctx, "v1", nil, time.Minute))

		ok, err := c.UpdateTTL(ctx, "v1", 2*time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ttl, found, err := c.TTL(ctx, "v1")
		require.NoError(t, err)
		require.True(t, found)
		assert.InDelta(t, (2 * time.Hour).Seconds(), ttl.Seconds(), 1)
	})

	t.Run("absent entry returns false", func(t *testing.T) {
		c, _ := newTestCache(t)

		ok, err := c.UpdateTTL(ctx, "ghost", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCache(t)
	other := New("edge-eu-west", s, time.Hour, zap.NewNop())

	require.NoError(t, c.Set(ctx, "a", map[string]interface{}{"x": 1}, time.Hour))
	require.NoError(t, c.Set(ctx, "b", map[string]interface{}{"y": 2}, time.Hour))
	require.NoError(t, other.Set(ctx, "c", nil, time.Hour))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "edge-us-east", stats.EdgeID)
	assert.Equal(t, 2, stats.CachedItems, "stats are scoped to this edge's namespace")
	assert.Greater(t, stats.SizeBytes, int64(0))

	deleted, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	otherStats, err := other.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, otherStats.CachedItems, "clearing one edge leaves the other untouched")
}
