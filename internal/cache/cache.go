// Package cache memoizes completed generations. Writers frequently re-run
// the same prompt against the same chapter; serving those from cache saves
// tokens and seconds.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "muse:cache:"

// Key captures everything that makes two generations interchangeable. Any
// difference in these fields must produce a different hash.
type Key struct {
	Prompt      string
	Context     string
	MaxTokens   int
	Temperature float64
	Model       string
	Provider    string
}

// Hash derives the storage key. Lengths are mixed in so that prompt/context
// boundary shifts cannot collide.
func (k Key) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s|%d:%s|%d|%g|%s|%s",
		len(k.Prompt), k.Prompt,
		len(k.Context), k.Context,
		k.MaxTokens, k.Temperature, k.Model, k.Provider)
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached generation.
type Entry struct {
	Content   string    `json:"content"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Cache is a two-tier response cache: an in-process LRU in front of an
// optional shared Redis tier. Redis failures never fail a request; the
// engine just generates again.
type Cache struct {
	memory *memoryStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a cache. rdb may be nil to run memory-only.
func New(ttl time.Duration, maxEntries int, rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		memory: newMemoryStore(maxEntries, ttl),
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached entry for a key, or ok=false.
func (c *Cache) Get(ctx context.Context, key Key) (Entry, bool) {
	hash := key.Hash()

	if entry, ok := c.memory.get(hash); ok {
		c.hits.Add(1)
		return entry, true
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisKeyPrefix+hash).Bytes()
		if err == nil {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err == nil {
				c.memory.put(hash, entry)
				c.hits.Add(1)
				return entry, true
			}
		} else if err != redis.Nil {
			c.logger.Warn("redis cache read failed", "error", err)
		}
	}

	c.misses.Add(1)
	return Entry{}, false
}

// Put stores a completed generation in both tiers.
func (c *Cache) Put(ctx context.Context, key Key, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	hash := key.Hash()
	c.memory.put(hash, entry)

	if c.rdb != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, redisKeyPrefix+hash, data, c.ttl).Err(); err != nil {
			c.logger.Warn("redis cache write failed", "error", err)
		}
	}
}

// Invalidate drops a single key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key Key) {
	hash := key.Hash()
	c.memory.delete(hash)
	if c.rdb != nil {
		c.rdb.Del(ctx, redisKeyPrefix+hash)
	}
}

// Clear empties the in-process tier. Redis entries age out via TTL.
func (c *Cache) Clear() {
	c.memory.clear()
}

// Stats reports hit/miss counts and current in-memory size.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.memory.len(),
	}
}
