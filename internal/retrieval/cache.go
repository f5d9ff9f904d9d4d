package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/wildsight/tigerwatch/internal/hash/sha256"
)

// CacheKey derives a stable cache key from the search parameters. The
// query is normalized so trivially different spellings share an entry.
func CacheKey(provider, query string, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return "search:" + sha256.Sum([]byte(fmt.Sprintf("%s|%s|%d", provider, normalized, limit)))
}

// NoopCache disables caching. Selected when no caching backend is
// configured so call sites never branch on a nil cache.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(context.Context, string) (SearchResponse, bool, error) {
	return SearchResponse{}, false, nil
}

// Set discards the entry.
func (NoopCache) Set(context.Context, string, SearchResponse, time.Duration) error {
	return nil
}

// MemoryCache is an in-process TTL cache for single-instance deployments.
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache builds a MemoryCache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(defaultTTL, 2*defaultTTL),
	}
}

// Get returns a cached response if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) (SearchResponse, bool, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return SearchResponse{}, false, nil
	}
	resp, ok := v.(SearchResponse)
	if !ok {
		return SearchResponse{}, false, nil
	}
	return resp, true, nil
}

// Set stores the response for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, resp SearchResponse, ttl time.Duration) error {
	c.store.Set(key, resp, ttl)
	return nil
}

// RedisCache shares search results across instances.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns a cached response if present.
func (c *RedisCache) Get(ctx context.Context, key string) (SearchResponse, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return SearchResponse{}, false, nil
	}
	if err != nil {
		return SearchResponse{}, false, fmt.Errorf("redis get: %w", err)
	}
	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return SearchResponse{}, false, fmt.Errorf("unmarshal cached response: %w", err)
	}
	return resp, true, nil
}

// Set stores the response for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, resp SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
