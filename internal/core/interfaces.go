// Package core declares the ports between the job services and their storage.
package core

import (
	"context"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the data package.

// JobStore is the claim protocol the durable worker runs against.
//
// Correctness across workers rests entirely on Claim: it must change the row only
// while it is still queued and report how many rows it changed.
type JobStore interface {
	SelectOldestQueued(ctx context.Context) (*model.Job, error)
	Claim(ctx context.Context, id string) (int64, error)
	Finalize(ctx context.Context, params model.FinalizeParams) error
	Insert(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
}

// JobReader exposes the read side used by producers polling for results.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Stats(ctx context.Context, ownerID string) (*model.JobStats, error)
}

// JobRepository combines the write and read sides of job persistence.
type JobRepository interface {
	JobStore
	JobReader
}

// RecoveryRepository is what the sweeper needs from storage.
type RecoveryRepository interface {
	RecoverStale(ctx context.Context, params model.RecoverStaleParams) (int64, error)
	DeleteOldJobs(ctx context.Context, params model.DeleteOldJobsParams) (int64, error)
}

// LimitsRepository reads and writes integer tunables keyed by name.
type LimitsRepository interface {
	GetInt(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64) error
	List(ctx context.Context) ([]model.Limit, error)
}

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil without error when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// ConfigReader resolves an integer tunable, returning fallback when it cannot be read.
type ConfigReader interface {
	Get(ctx context.Context, key string, fallback int64) int64
}
