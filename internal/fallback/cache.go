package fallback

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"winescan/internal/config"
	"winescan/internal/services"
	"winescan/internal/textutil"
)

// Entry is one cached guess.
type Entry struct {
	Key      string    `json:"key"`
	Guess    Guess     `json:"guess"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache stores successful guesses keyed by normalized bottle text.
// Implementations are safe for concurrent use; concurrent Puts for the same
// key resolve last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) (Guess, bool, error)
	Put(ctx context.Context, key string, guess Guess) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	List(ctx context.Context) ([]Entry, error)
}

// Key canonicalizes normalized text into a cache key.
func Key(normalized string) string {
	return textutil.Fold(normalized)
}

// Open builds the cache backend selected by cfg. The returned close function
// is never nil.
func Open(cfg *config.Config, logger *slog.Logger) (Cache, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return NewMemoryCache("", logger), noop, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMCache.Backend)) {
	case "", "memory":
		return NewMemoryCache(cfg.Paths.CachePath, logger), noop, nil
	case "redis":
		client, err := NewRedisClient(RedisConfig{
			Address:  cfg.LLMCache.RedisAddress,
			Password: cfg.LLMCache.RedisPassword,
			DB:       cfg.LLMCache.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return NewRedisCache(client, cfg.LLMCache.KeyPrefix, logger), client.Close, nil
	default:
		return nil, noop, services.Wrap(services.ErrConfiguration, "fallback", "open cache", "unknown backend "+cfg.LLMCache.Backend, nil)
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CachedAt.Equal(entries[j].CachedAt) {
			return entries[i].CachedAt.After(entries[j].CachedAt)
		}
		return entries[i].Key < entries[j].Key
	})
}
