package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testCache(maxEntries int, ttl time.Duration) *Cache {
	return New(ttl, maxEntries, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKey_HashDistinguishesFields(t *testing.T) {
	base := Key{
		Prompt:      "describe the castle",
		Context:     "chapter 3",
		MaxTokens:   2000,
		Temperature: 0.7,
		Model:       "gpt-3.5-turbo",
		Provider:    "openai",
	}

	variants := []Key{
		{Prompt: "describe the tower", Context: base.Context, MaxTokens: base.MaxTokens, Temperature: base.Temperature, Model: base.Model, Provider: base.Provider},
		{Prompt: base.Prompt, Context: "chapter 4", MaxTokens: base.MaxTokens, Temperature: base.Temperature, Model: base.Model, Provider: base.Provider},
		{Prompt: base.Prompt, Context: base.Context, MaxTokens: 100, Temperature: base.Temperature, Model: base.Model, Provider: base.Provider},
		{Prompt: base.Prompt, Context: base.Context, MaxTokens: base.MaxTokens, Temperature: 0.2, Model: base.Model, Provider: base.Provider},
		{Prompt: base.Prompt, Context: base.Context, MaxTokens: base.MaxTokens, Temperature: base.Temperature, Model: "gpt-4", Provider: base.Provider},
		{Prompt: base.Prompt, Context: base.Context, MaxTokens: base.MaxTokens, Temperature: base.Temperature, Model: base.Model, Provider: "deepseek"},
	}

	baseHash := base.Hash()
	for i, v := range variants {
		if v.Hash() == baseHash {
			t.Errorf("variant %d should hash differently", i)
		}
	}
	if base.Hash() != baseHash {
		t.Error("hash must be deterministic")
	}
}

func TestKey_HashBoundaryShift(t *testing.T) {
	a := Key{Prompt: "ab", Context: "c"}
	b := Key{Prompt: "a", Context: "bc"}
	if a.Hash() == b.Hash() {
		t.Error("prompt/context boundary shift must not collide")
	}
}

func TestCache_PutGet(t *testing.T) {
	c := testCache(10, time.Hour)
	key := Key{Prompt: "p", Provider: "openai"}

	if _, ok := c.Get(context.Background(), key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(context.Background(), key, Entry{Content: "once upon a time", Provider: "openai"})
	entry, ok := c.Get(context.Background(), key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if entry.Content != "once upon a time" {
		t.Errorf("unexpected content: %q", entry.Content)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Put should stamp CreatedAt")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := testCache(10, 10*time.Millisecond)
	key := Key{Prompt: "p"}
	c.Put(context.Background(), key, Entry{Content: "x"})

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(context.Background(), key); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := testCache(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Put(ctx, Key{Prompt: fmt.Sprintf("p%d", i)}, Entry{Content: "x"})
	}
	// Touch p0 so p1 becomes the eviction candidate.
	if _, ok := c.Get(ctx, Key{Prompt: "p0"}); !ok {
		t.Fatal("p0 should be cached")
	}

	c.Put(ctx, Key{Prompt: "p3"}, Entry{Content: "x"})

	if _, ok := c.Get(ctx, Key{Prompt: "p1"}); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := c.Get(ctx, Key{Prompt: "p0"}); !ok {
		t.Error("recently used entry should survive eviction")
	}
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c := testCache(10, time.Hour)
	ctx := context.Background()
	key := Key{Prompt: "p"}

	c.Put(ctx, key, Entry{Content: "x"})
	c.Invalidate(ctx, key)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("invalidated entry should miss")
	}

	c.Put(ctx, key, Entry{Content: "x"})
	c.Clear()
	if c.Stats().Entries != 0 {
		t.Error("Clear should empty the memory tier")
	}
}
