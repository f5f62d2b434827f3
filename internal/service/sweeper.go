package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Sweeper step names, used as the "step" metric tag.
const (
	SweepStepRecoverStale = "recover_stale"
	SweepStepDeleteDone   = "delete_done"
	SweepStepDeleteFailed = "delete_failed"
)

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Repo         core.RecoveryRepository // Required: recovery repository
	Limits       core.ConfigReader       // Optional: runtime tunables (processing timeout)
	Config       config.SweeperConfig    // Required: sweeper configuration
	Logger       *slog.Logger            // Optional: structured logger
	Metrics      statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider       // Optional: clock, defaults to the system clock
}

// SweeperService returns jobs abandoned in processing to the queue and prunes old terminal rows.
type SweeperService struct {
	repo    core.RecoveryRepository
	limits  core.ConfigReader
	config  config.SweeperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	clock   data.TimeProvider
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RecoveryRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper_service")

	cfg := opts.Config
	if cfg.RecoveryMode == "" {
		cfg.RecoveryMode = model.RecoveryModeRequeue
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = time.Duration(model.DefaultJobProcessingTimeoutSeconds) * time.Second
	}

	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}

	logger.Debug("SweeperService initialized",
		"interval", cfg.Interval,
		"processing_timeout", cfg.ProcessingTimeout,
		"recovery_mode", cfg.RecoveryMode,
		"done_max_age", cfg.DoneMaxAge,
		"failed_max_age", cfg.FailedMaxAge,
	)

	return &SweeperService{
		repo:    opts.Repo,
		limits:  opts.Limits,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
		clock:   clock,
	}, nil
}

// processingTimeout resolves the staleness threshold, preferring the stored limit.
func (s *SweeperService) processingTimeout(ctx context.Context) time.Duration {
	fallback := int64(s.config.ProcessingTimeout / time.Second)
	seconds := fallback
	if s.limits != nil {
		seconds = s.limits.Get(ctx, model.LimitJobProcessingTimeoutSeconds, fallback)
	}
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// Sweep recovers every processing job whose last update is older than the processing
// timeout (or missing). It issues one bulk update and returns the number of rows changed.
func (s *SweeperService) Sweep(ctx context.Context) (int64, error) {
	timeout := s.processingTimeout(ctx)
	cutoff := s.clock.Now().Add(-timeout)

	n, err := s.repo.RecoverStale(ctx, model.RecoverStaleParams{
		Cutoff: cutoff,
		Mode:   s.config.RecoveryMode,
	})
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	if n > 0 {
		s.logger.WarnContext(ctx, "recovered stale processing jobs",
			"count", n,
			"cutoff", cutoff,
			"mode", s.config.RecoveryMode,
		)
	}
	return n, nil
}

// RecoverOnStart runs one sweep before a worker begins polling. Errors are logged and
// swallowed so the worker starts regardless.
func (s *SweeperService) RecoverOnStart(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "startup recovery sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "startup recovery sweep complete", "count", n)
}

// Run starts the periodic sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown.
func (s *SweeperService) Run(ctx context.Context) error {
	interval := s.config.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.logger.InfoContext(ctx, "starting sweeper service", "interval", interval)

	// Jitter keeps replicas started together from sweeping in lockstep.
	s.waitWithJitter(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logSweepError(ctx, err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logSweepError(ctx, err, "sweep")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SweeperService) waitWithJitter(ctx context.Context, interval time.Duration) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

type sweepStep struct {
	name string
	fn   func(context.Context) (int64, error)
}

// RunOnce executes every sweeper step once: stale recovery, then retention of done
// and failed rows. Step errors are joined; a failing step does not skip the others.
func (s *SweeperService) RunOnce(ctx context.Context) error {
	steps := []sweepStep{
		{name: SweepStepRecoverStale, fn: s.Sweep},
		{name: SweepStepDeleteDone, fn: func(ctx context.Context) (int64, error) {
			return s.deleteOld(ctx, model.JobStatusDone, s.config.DoneMaxAge)
		}},
		{name: SweepStepDeleteFailed, fn: func(ctx context.Context) (int64, error) {
			return s.deleteOld(ctx, model.JobStatusFailed, s.config.FailedMaxAge)
		}},
	}

	var errs []error
	for _, step := range steps {
		start := time.Now()
		count, err := step.fn(ctx)
		metrics.EmitSweep(s.metrics, metrics.SweepMetric{
			Step:     step.name,
			Count:    count,
			Duration: time.Since(start),
			Err:      suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if s.metrics != nil {
		s.metrics.Gauge("sweeper.last_success_epoch", float64(s.clock.Now().Unix()), nil)
	}
	return nil
}

// deleteOld removes terminal jobs older than maxAge, batch by batch, until a batch comes back empty.
func (s *SweeperService) deleteOld(ctx context.Context, status model.JobStatus, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	batch := s.config.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	var total int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, model.DeleteOldJobsParams{
			Status:    status,
			MaxAge:    maxAge,
			BatchSize: batch,
		})
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old jobs",
			"status", status,
			"count", total,
			"max_age", maxAge,
		)
	}
	return total, nil
}

func (s *SweeperService) logSweepError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
