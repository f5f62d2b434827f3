package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// DefaultConfigCacheTTL is how long a tunable is served from memory before the store is re-read.
const DefaultConfigCacheTTL = 5 * time.Minute

// ConfigCacheOptions groups dependencies for ConfigCache.
type ConfigCacheOptions struct {
	Repo   core.LimitsRepository // Required: limits storage
	TTL    time.Duration         // Optional: defaults to DefaultConfigCacheTTL
	Logger *slog.Logger          // Optional: structured logger
	Now    func() time.Time      // Optional: clock override for tests
}

// ConfigCache is a process-local, read-through cache of job_limits values.
//
// A failed read never poisons the cache: the caller gets the last known value
// (or its fallback) and the next call retries the store.
type ConfigCache struct {
	repo   core.LimitsRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]configEntry
	group   singleflight.Group
}

type configEntry struct {
	value     int64
	fetchedAt time.Time
}

var _ core.ConfigReader = (*ConfigCache)(nil)

// NewConfigCache constructs a ConfigCache.
func NewConfigCache(opts ConfigCacheOptions) (*ConfigCache, error) {
	if opts.Repo == nil {
		return nil, errors.New("LimitsRepository is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultConfigCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ConfigCache{
		repo:    opts.Repo,
		ttl:     ttl,
		logger:  logger.With("component", "config_cache"),
		now:     now,
		entries: make(map[string]configEntry),
	}, nil
}

// Get returns the value for key. Fresh entries are served from memory; otherwise the
// store is read once per key across concurrent callers. When the read fails the last
// known value is returned if there is one, else fallback.
func (c *ConfigCache) Get(ctx context.Context, key string, fallback int64) int64 {
	if c == nil {
		return fallback
	}
	if v, ok := c.lookup(ctx, key); ok {
		return v
	}
	return fallback
}

// GetDuration reads key as a count of unit. Missing, unreadable or non-positive values yield fallback.
func (c *ConfigCache) GetDuration(ctx context.Context, key string, unit, fallback time.Duration) time.Duration {
	if c == nil {
		return fallback
	}
	v, ok := c.lookup(ctx, key)
	if !ok || v <= 0 {
		return fallback
	}
	return time.Duration(v) * unit
}

func (c *ConfigCache) lookup(ctx context.Context, key string) (int64, bool) {
	c.mu.RLock()
	entry, cached := c.entries[key]
	c.mu.RUnlock()

	if cached && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.value, true
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := c.repo.GetInt(ctx, key)
		if err != nil {
			return int64(0), err
		}
		c.mu.Lock()
		c.entries[key] = configEntry{value: value, fetchedAt: c.now()}
		c.mu.Unlock()
		return value, nil
	})
	if err == nil {
		return v.(int64), true
	}

	if errors.Is(err, data.ErrLimitNotFound) {
		c.logger.DebugContext(ctx, "limit not set, using fallback", "key", key)
	} else {
		c.logger.WarnContext(ctx, "failed to read limit", "key", key, "stale", cached, "error", err)
	}
	if cached {
		return entry.value, true
	}
	return 0, false
}

// Invalidate drops the cached value for key so the next Get reads the store.
func (c *ConfigCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Set writes value through to the store and refreshes the local entry.
func (c *ConfigCache) Set(ctx context.Context, key string, value int64) error {
	key = strings.TrimSpace(key)
	if err := c.repo.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set limit %s: %w", key, err)
	}
	c.mu.Lock()
	c.entries[key] = configEntry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "limit updated", "key", key, "value", value)
	return nil
}

// List returns every stored tunable straight from the store.
func (c *ConfigCache) List(ctx context.Context) ([]model.Limit, error) {
	limits, err := c.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	return limits, nil
}
