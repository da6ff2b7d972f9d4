package classification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// MemoCache memoizes classification results for near-duplicate messages
// within a session. Entries are time-boxed; stale-but-valid reads are fine
// and duplicate concurrent fetches for the same key are acceptable.
type MemoCache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, result *Result)
	Close() error
}

// memoKey normalizes text into a cache key: lowercased, whitespace collapsed,
// truncated to a fixed rune prefix.
func memoKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

// NewMemoCache creates a memoization cache backend from configuration.
func NewMemoCache(cfg config.ClassifierConfig) (MemoCache, error) {
	switch cfg.MemoBackend {
	case "memory", "":
		return newMemoryMemoCache(cfg.MemoTTL(), cfg.MemoMaxEntries), nil
	case "redis":
		return newRedisMemoCache(cfg.RedisAddress, cfg.MemoTTL())
	default:
		return nil, fmt.Errorf("unsupported memo backend %q (valid: memory, redis)", cfg.MemoBackend)
	}
}

type memoEntry struct {
	result    Result
	expiresAt time.Time
}

// memoryMemoCache is a mutex-guarded TTL map with oldest-first eviction at
// capacity.
type memoryMemoCache struct {
	mu         sync.RWMutex
	entries    map[string]memoEntry
	ttl        time.Duration
	maxEntries int
	done       chan struct{}
}

func newMemoryMemoCache(ttl time.Duration, maxEntries int) *memoryMemoCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &memoryMemoCache{
		entries:    make(map[string]memoEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

func (c *memoryMemoCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	result := entry.result
	return &result, true
}

func (c *memoryMemoCache) Set(_ context.Context, key string, result *Result) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		// Evict the entry closest to expiry.
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = memoEntry{result: *result, expiresAt: time.Now().Add(c.ttl)}
}

func (c *memoryMemoCache) Close() error {
	close(c.done)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return nil
}

func (c *memoryMemoCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// redisMemoCache stores results as TTL'd JSON values. Redis errors degrade to
// cache misses; memoization is an optimization, never a dependency.
type redisMemoCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisMemoCache(address string, ttl time.Duration) (*redisMemoCache, error) {
	client := redis.NewClient(&redis.Options{Addr: address})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logging.Infof("Classification memo cache using redis at %s", address)
	return &redisMemoCache{client: client, ttl: ttl}, nil
}

func (c *redisMemoCache) Get(ctx context.Context, key string) (*Result, bool) {
	data, err := c.client.Get(ctx, "classify:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Debugf("[MemoCache] redis get failed: %v", err)
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *redisMemoCache) Set(ctx context.Context, key string, result *Result) {
	if result == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "classify:"+key, data, c.ttl).Err(); err != nil {
		logging.Debugf("[MemoCache] redis set failed: %v", err)
	}
}

func (c *redisMemoCache) Close() error {
	return c.client.Close()
}
