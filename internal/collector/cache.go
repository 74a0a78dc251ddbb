package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 按源 ID 缓存最近一次成功采集的原始条目
type Cache interface {
	Get(ctx context.Context, key string) ([]RawFeedItem, bool)
	Set(ctx context.Context, key string, items []RawFeedItem)
	Clear(ctx context.Context) error
}

type cacheEntry struct {
	items      []RawFeedItem
	insertedAt time.Time
}

// MemoryCache 进程内缓存，读取时检查 TTL，过期条目在读取时删除
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewMemoryCache ttl<=0 表示不缓存
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithClock 替换时钟
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]RawFeedItem, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return append([]RawFeedItem(nil), e.items...), true
}

func (c *MemoryCache) Set(_ context.Context, key string, items []RawFeedItem) {
	if c.ttl <= 0 || len(items) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		items:      append([]RawFeedItem(nil), items...),
		insertedAt: c.now(),
	}
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len 当前缓存条目数（含未被读取清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const redisCachePrefix = "newsdigest:fetch:"

// RedisCache 多实例部署时共享的采集缓存，TTL 交给 Redis 过期
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]RawFeedItem, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	bs, err := c.rdb.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var items []RawFeedItem
	if err := json.Unmarshal(bs, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

func (c *RedisCache) Set(ctx context.Context, key string, items []RawFeedItem) {
	if c.ttl <= 0 || len(items) == 0 {
		return
	}
	bs, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, redisCachePrefix+key, bs, c.ttl).Err()
}

// Clear 只删除本缓存前缀下的 key
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, redisCachePrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
