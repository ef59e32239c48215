package fallback

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"winescan/internal/config"
)

func exerciseCache(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "opus one"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Put(ctx, "Opus  One", Guess{Name: "Opus One", Confidence: 0.9}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	guess, ok, err := cache.Get(ctx, "opus one")
	if err != nil || !ok || guess.Name != "Opus One" {
		t.Fatalf("expected hit through key folding, got %+v ok=%v err=%v", guess, ok, err)
	}
	if err := cache.Put(ctx, "opus one", Guess{Name: "Opus One Overture", Confidence: 0.5}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if guess, _, _ := cache.Get(ctx, "opus one"); guess.Name != "Opus One Overture" {
		t.Fatalf("expected last writer to win, got %+v", guess)
	}

	if err := cache.Put(ctx, "caymus", Guess{Name: "Caymus Cabernet Sauvignon", Confidence: 0.8}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := cache.List(ctx)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d err=%v", len(entries), err)
	}

	if err := cache.Invalidate(ctx, "opus one"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "opus one"); ok {
		t.Fatal("invalidated entry still present")
	}
	if err := cache.Invalidate(ctx, "never cached"); err != nil {
		t.Fatalf("Invalidate missing: %v", err)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if entries, _ := cache.List(ctx); len(entries) != 0 {
		t.Fatalf("expected empty cache, got %d", len(entries))
	}
	if err := cache.Put(ctx, "  ", Guess{Name: "x"}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache("", nil))
}

func TestRedisCache(t *testing.T) {
	server := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()
	exerciseCache(t, NewRedisCache(client, "test:", nil))
}

func TestRedisCacheHasNoTTLAndUsesPrefix(t *testing.T) {
	server := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()
	cache := NewRedisCache(client, "", nil)
	if err := cache.Put(context.Background(), "opus one", Guess{Name: "Opus One"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	key := DefaultKeyPrefix + "opus one"
	if !server.Exists(key) {
		t.Fatalf("expected key %q, have %v", key, server.Keys())
	}
	if ttl := server.TTL(key); ttl != 0 {
		t.Fatalf("expected no TTL, got %v", ttl)
	}
	server.FastForward(24 * time.Hour)
	if _, ok, _ := cache.Get(context.Background(), "opus one"); !ok {
		t.Fatal("entry should not expire")
	}
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	if client, err := NewRedisClient(RedisConfig{}); err == nil || client != nil {
		t.Fatalf("expected error for empty address, got %v", err)
	}
}

func TestMemoryCacheSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "llm.json")
	first := NewMemoryCache(path, nil)
	if err := first.Put(context.Background(), "whispering angel", Guess{Name: "Whispering Angel Rosé", Confidence: 0.7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	second := NewMemoryCache(path, nil)
	guess, ok, err := second.Get(context.Background(), "whispering angel")
	if err != nil || !ok || guess.Name != "Whispering Angel Rosé" {
		t.Fatalf("snapshot not reloaded: %+v ok=%v err=%v", guess, ok, err)
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache("", nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("wine %d", i%4)
			for j := 0; j < 50; j++ {
				_ = cache.Put(ctx, key, Guess{Name: key, Confidence: float64(j) / 50})
				_, _, _ = cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	entries, _ := cache.List(ctx)
	if len(entries) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(entries))
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.CachePath = filepath.Join(t.TempDir(), "llm.json")
	cache, closeFn, err := Open(&cfg, nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	defer closeFn()
	if _, ok := cache.(*MemoryCache); !ok {
		t.Fatalf("expected MemoryCache, got %T", cache)
	}

	server := miniredis.RunT(t)
	cfg.LLMCache.Backend = "redis"
	cfg.LLMCache.RedisAddress = server.Addr()
	cache, closeRedis, err := Open(&cfg, nil)
	if err != nil {
		t.Fatalf("Open redis: %v", err)
	}
	defer closeRedis()
	if _, ok := cache.(*RedisCache); !ok {
		t.Fatalf("expected RedisCache, got %T", cache)
	}

	cfg.LLMCache.Backend = "memcached"
	if _, _, err := Open(&cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
