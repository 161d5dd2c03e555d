package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache memoises query results. Implementations treat every failure as a
// miss.
type Cache interface {
	Get(ctx context.Context, query string) ([]Result, bool)
	Set(ctx context.Context, query string, results []Result)
}

type memEntry struct {
	results []Result
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryCache returns a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memEntry), now: time.Now}
}

// Get returns a live entry.
func (c *MemoryCache) Get(_ context.Context, query string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, query)
		return nil, false
	}
	return append([]Result(nil), e.results...), true
}

// Set stores a copy of results.
func (c *MemoryCache) Set(_ context.Context, query string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = memEntry{
		results: append([]Result(nil), results...),
		expires: c.now().Add(c.ttl),
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache stores results as JSON under "agentflow:search:<sha256>".
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "agentflow:search:" + hex.EncodeToString(sum[:])
}

// Get loads query's results.
func (c *RedisCache) Get(ctx context.Context, query string) ([]Result, bool) {
	data, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.String("query", query), zap.Error(err))
		return nil, false
	}
	return results, true
}

// Set stores query's results with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, query string, results []Result) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(query), data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

// Close closes the connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
