package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsCache holds dashboard aggregates. Entries may be stale for up to
// their TTL; the workflow itself never reads from it.
type StatsCache interface {
	Get(ctx context.Context, key string) (*DashboardStats, bool)
	Set(ctx context.Context, key string, stats *DashboardStats, ttl time.Duration)
}

type memoryStatsEntry struct {
	stats     *DashboardStats
	expiresAt time.Time
}

type MemoryStatsCache struct {
	mu      sync.RWMutex
	entries map[string]memoryStatsEntry
	now     Clock
}

func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{entries: map[string]memoryStatsEntry{}, now: time.Now}
}

func (c *MemoryStatsCache) Get(_ context.Context, key string) (*DashboardStats, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.stats, true
}

func (c *MemoryStatsCache) Set(_ context.Context, key string, stats *DashboardStats, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryStatsEntry{stats: stats, expiresAt: c.now().Add(ttl)}
}

// Clear drops every cached entry.
func (c *MemoryStatsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryStatsEntry{}
}

// RedisStatsCache shares aggregates between API instances. Redis errors are
// logged and treated as a miss.
type RedisStatsCache struct {
	client *redis.Client
	prefix string
}

func NewRedisStatsCache(client *redis.Client) *RedisStatsCache {
	return &RedisStatsCache{client: client, prefix: "grant-review:"}
}

func (c *RedisStatsCache) Get(ctx context.Context, key string) (*DashboardStats, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("stats cache get %s: %v", key, err)
		}
		return nil, false
	}
	var stats DashboardStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Printf("stats cache decode %s: %v", key, err)
		return nil, false
	}
	return &stats, true
}

func (c *RedisStatsCache) Set(ctx context.Context, key string, stats *DashboardStats, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		log.Printf("stats cache encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		log.Printf("stats cache set %s: %v", key, err)
	}
}
