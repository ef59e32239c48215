package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"winescan/internal/logging"
	"winescan/internal/services"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis.
const DefaultKeyPrefix = "winescan:llm:"

const (
	connectionTimeout = 5 * time.Second
	scanBatch         = 200
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "fallback", "redis", "address is required", nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, services.Wrap(services.ErrExternalTool, "fallback", "redis", "ping failed", err)
	}
	return client, nil
}

// RedisCache stores guesses as JSON strings without a TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.Cmdable, prefix string, logger *slog.Logger) *RedisCache {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "llm_cache"),
		now:    time.Now,
	}
}

// Get returns the cached guess for key.
func (c *RedisCache) Get(ctx context.Context, key string) (Guess, bool, error) {
	key = Key(key)
	if key == "" {
		return Guess{}, false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Guess{}, false, nil
	}
	if err != nil {
		return Guess{}, false, services.Wrap(services.ErrExternalTool, "fallback", "cache get", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Debug("discarding unreadable cache entry", logging.String("key", key), logging.Error(err))
		return Guess{}, false, nil
	}
	return entry.Guess, true, nil
}

// Put stores guess under key.
func (c *RedisCache) Put(ctx context.Context, key string, guess Guess) error {
	key = Key(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	data, err := json.Marshal(Entry{Key: key, Guess: guess, CachedAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, 0).Err(); err != nil {
		return services.Wrap(services.ErrExternalTool, "fallback", "cache put", key, err)
	}
	return nil
}

// Invalidate removes key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	key = Key(key)
	if key == "" {
		return nil
	}
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return services.Wrap(services.ErrExternalTool, "fallback", "cache invalidate", key, err)
	}
	return nil
}

// Clear deletes every key under the prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return services.Wrap(services.ErrExternalTool, "fallback", "cache clear", "", err)
		}
	}
	return nil
}

// List returns entries newest first.
func (c *RedisCache) List(ctx context.Context) ([]Entry, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "fallback", "cache list", key, err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "fallback", "cache scan", "", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
