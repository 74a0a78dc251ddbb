package collector

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []RawFeedItem {
	return []RawFeedItem{
		{Title: "苹果发布新款 iPhone", URL: "https://e.com/1"},
		{Title: "区块链周报", URL: "https://e.com/2"},
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour).WithClock(func() time.Time { return now })

	c.Set(ctx, "zhihu", sampleItems())
	got, ok := c.Get(ctx, "zhihu")
	require.True(t, ok)
	assert.Len(t, got, 2)

	now = now.Add(59 * time.Minute)
	_, ok = c.Get(ctx, "zhihu")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "zhihu")
	assert.False(t, ok, "entry older than ttl must be a miss")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheCopiesSlices(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)
	items := sampleItems()
	c.Set(ctx, "k", items)
	items[0].Title = "changed"

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "苹果发布新款 iPhone", got[0].Title)
}

func TestMemoryCacheSkipsEmptyAndDisabled(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)
	c.Set(ctx, "empty", nil)
	_, ok := c.Get(ctx, "empty")
	assert.False(t, ok)

	off := NewMemoryCache(0)
	off.Set(ctx, "k", sampleItems())
	_, ok = off.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)
	c.Set(ctx, "a", sampleItems())
	c.Set(ctx, "b", sampleItems())
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	c := NewRedisCache(rdb, time.Hour)

	items := sampleItems()
	items[0].PublishTime = NewFeedTime(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	c.Set(ctx, "ithome", items)

	got, ok := c.Get(ctx, "ithome")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, items[0].Title, got[0].Title)
	require.NotNil(t, got[0].Timestamp())
	assert.True(t, got[0].Timestamp().Equal(items[0].PublishTime.Time))
	assert.Nil(t, got[1].Timestamp())

	mr.FastForward(time.Hour + time.Second)
	_, ok = c.Get(ctx, "ithome")
	assert.False(t, ok)
}

func TestRedisCacheClearOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	c := NewRedisCache(rdb, time.Hour)

	require.NoError(t, mr.Set("other:key", "keep"))
	c.Set(ctx, "a", sampleItems())
	c.Set(ctx, "b", sampleItems())

	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.True(t, mr.Exists("other:key"))
}
