package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the durable Postgres polling worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeSweeper runs the periodic recovery and retention sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
	// ServiceModeLocalQueue runs the in-process task queue.
	ServiceModeLocalQueue ServiceMode = "local-queue"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeSweeper,
		ServiceModeLocalQueue,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeSweeper, ServiceModeLocalQueue:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, sweeper, local-queue)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains durable job worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of independent poll loops per process.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// PollInterval is the idle wait when no queued job exists. The job_poll_interval_ms
	// limit overrides it at runtime.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`

	// ErrorBackoff is the pause after an unexpected loop error. The job_error_backoff_ms
	// limit overrides it at runtime.
	ErrorBackoff time.Duration `env:"WORKER_ERROR_BACKOFF" envDefault:"5s"`

	// JobTimeout bounds a single processor invocation. Zero disables the deadline.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"0s"`

	// ListenEnabled wakes idle loops through LISTEN jobs_queued.
	ListenEnabled bool `env:"WORKER_LISTEN_ENABLED" envDefault:"true"`

	// RecoverOnStart runs one stale-job sweep before the loops start.
	RecoverOnStart bool `env:"WORKER_RECOVER_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Concurrency > 64 {
		w.Concurrency = 64
	}
	if w.PollInterval < 50*time.Millisecond {
		w.PollInterval = 50 * time.Millisecond
	}
	if w.ErrorBackoff < 100*time.Millisecond {
		w.ErrorBackoff = 100 * time.Millisecond
	}
	if w.JobTimeout < 0 {
		w.JobTimeout = 0
	}
}

// LocalQueueConfig contains in-process task queue configuration.
type LocalQueueConfig struct {
	// Concurrency is the maximum number of jobs executing at once.
	Concurrency int `env:"LOCAL_QUEUE_CONCURRENCY" envDefault:"3"`

	// Timeout is the per-job execution deadline.
	Timeout time.Duration `env:"LOCAL_QUEUE_TIMEOUT" envDefault:"120s"`

	// CleanupInterval is the eviction tick. Zero means "equal to Timeout".
	CleanupInterval time.Duration `env:"LOCAL_QUEUE_CLEANUP_INTERVAL" envDefault:"0s"`
}

// Sanitize applies guardrails to local queue configuration values.
func (l *LocalQueueConfig) Sanitize() {
	if l.Concurrency < 1 {
		l.Concurrency = 1
	}
	if l.Timeout < time.Second {
		l.Timeout = time.Second
	}
	if l.CleanupInterval <= 0 {
		l.CleanupInterval = l.Timeout
	}
}

// SweeperConfig contains recovery sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweeper tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"5m"`

	// ProcessingTimeout is the fallback staleness threshold when the
	// job_processing_timeout_seconds limit cannot be read.
	ProcessingTimeout time.Duration `env:"SWEEPER_PROCESSING_TIMEOUT" envDefault:"1800s"`

	// RecoveryMode is requeue or fail.
	RecoveryMode model.RecoveryMode `env:"SWEEPER_RECOVERY_MODE" envDefault:"requeue"`

	// DoneMaxAge is the maximum age for done jobs before deletion.
	DoneMaxAge time.Duration `env:"SWEEPER_DONE_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"SWEEPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows deleted per retention step.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if s.Interval < 10*time.Second {
		s.Interval = 10 * time.Second
	}
	if s.ProcessingTimeout < time.Minute {
		s.ProcessingTimeout = time.Minute
	}
	mode := model.RecoveryMode(strings.ToLower(strings.TrimSpace(string(s.RecoveryMode))))
	if !mode.Valid() {
		mode = model.RecoveryModeRequeue
	}
	s.RecoveryMode = mode
	if s.DoneMaxAge < time.Hour {
		s.DoneMaxAge = time.Hour
	}
	if s.FailedMaxAge < time.Hour {
		s.FailedMaxAge = time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.BatchSize > 10000 {
		s.BatchSize = 10000
	}
}

// ConfigCacheConfig controls the in-process cache in front of job_limits.
type ConfigCacheConfig struct {
	TTL time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to config cache values.
func (c *ConfigCacheConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
}

// StatusCacheConfig controls the Redis cache of terminal job statuses.
type StatusCacheConfig struct {
	TTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to status cache values.
func (c *StatusCacheConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
}
