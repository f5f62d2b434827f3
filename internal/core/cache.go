package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// JobStatusCache keeps terminal job statuses in a shared cache so result polling does not hit Postgres.
// Only done and failed responses are stored: they never change once written.
type JobStatusCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// JobStatusCacheConfig holds configuration for status caching.
type JobStatusCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultJobStatusCacheConfig returns a JobStatusCacheConfig with sensible defaults.
func DefaultJobStatusCacheConfig() JobStatusCacheConfig {
	return JobStatusCacheConfig{TTL: 10 * time.Minute}
}

// NewJobStatusCache creates a JobStatusCache. A nil cache yields a cache that stores nothing.
func NewJobStatusCache(cache CacheRepository, cfg JobStatusCacheConfig) *JobStatusCache {
	if cfg.TTL <= 0 {
		cfg = DefaultJobStatusCacheConfig()
	}
	return &JobStatusCache{cache: cache, ttl: cfg.TTL}
}

// Get returns the cached response for id, or nil on a miss.
func (c *JobStatusCache) Get(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	if c == nil || c.cache == nil || id == "" {
		return nil, nil
	}
	raw, err := c.cache.Get(ctx, statusKey(id))
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var resp model.JobStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode cached status %s: %w", id, err)
	}
	return &resp, nil
}

// Put stores resp when it is terminal. Non-terminal responses are ignored.
func (c *JobStatusCache) Put(ctx context.Context, resp *model.JobStatusResponse) error {
	if c == nil || c.cache == nil || resp == nil || !resp.Status.IsTerminal() {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", resp.ID, err)
	}
	return c.cache.Set(ctx, statusKey(resp.ID), raw, c.ttl)
}

// Invalidate removes a cached status.
func (c *JobStatusCache) Invalidate(ctx context.Context, id string) error {
	if c == nil || c.cache == nil || id == "" {
		return nil
	}
	_, err := c.cache.Delete(ctx, statusKey(id))
	return err
}

func statusKey(id string) string {
	return "status:" + id
}
