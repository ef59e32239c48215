package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"winescan/internal/logging"
)

// MemoryCache keeps guesses in process memory. With a path it also writes a
// JSON snapshot after every change and reloads it on construction.
type MemoryCache struct {
	path    string
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates a cache; an empty path disables the snapshot.
func NewMemoryCache(path string, logger *slog.Logger) *MemoryCache {
	logger = logging.NewComponentLogger(logger, "llm_cache")
	c := &MemoryCache{
		path:    path,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	if path == "" {
		return c
	}
	if err := c.load(); err != nil {
		logging.WarnWithContext(logger, "failed to load llm cache snapshot", "llm_cache_load_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "delete the snapshot file if it is corrupt"),
			logging.String(logging.FieldImpact, "previously cached guesses will be requested again"))
	}
	return c
}

// Get returns the cached guess for key.
func (c *MemoryCache) Get(_ context.Context, key string) (Guess, bool, error) {
	key = Key(key)
	if key == "" {
		return Guess{}, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.Guess, ok, nil
}

// Put stores guess under key.
func (c *MemoryCache) Put(_ context.Context, key string, guess Guess) error {
	key = Key(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Key: key, Guess: guess, CachedAt: c.now().UTC()}
	return c.persist()
}

// Invalidate removes key; a missing key is not an error.
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	key = Key(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.persist()
}

// Clear removes every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	return c.persist()
}

// List returns entries newest first.
func (c *MemoryCache) List(_ context.Context) ([]Entry, error) {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()
	sortEntries(entries)
	return entries, nil
}

func (c *MemoryCache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	for _, entry := range entries {
		if key := Key(entry.Key); key != "" {
			entry.Key = key
			c.entries[key] = entry
		}
	}
	c.logger.Debug("loaded llm cache", logging.Int("entry_count", len(c.entries)), logging.String("path", c.path))
	return nil
}

// persist writes the snapshot atomically. Callers hold the write lock.
func (c *MemoryCache) persist() error {
	if c.path == "" {
		return nil
	}
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
