package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo        core.JobRepository   // Required: job repository
	StatusCache *core.JobStatusCache // Optional: shared cache of terminal statuses
	Logger      *slog.Logger         // Optional: structured logger
	Metrics     statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// JobService is the producer side of the durable queue: it enqueues jobs and answers
// result polls.
type JobService struct {
	repo    core.JobRepository
	cache   *core.JobStatusCache
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:    opts.Repo,
		cache:   opts.StatusCache,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Enqueue persists a queued job. The id is generated when the request omits one.
func (s *JobService) Enqueue(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	job, err := s.repo.Insert(ctx, &req)
	if err != nil {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Path:       metrics.PathWorker,
			JobType:    string(req.Type),
			Transition: metrics.TransitionEnqueued,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Path:       metrics.PathWorker,
		JobType:    string(job.Type),
		Transition: metrics.TransitionEnqueued,
		Result:     metrics.ResultSuccess,
	})
	if s.logger != nil {
		s.logger.DebugContext(ctx, "job enqueued",
			"job_id", job.ID,
			"job_type", job.Type,
			"owner_id", job.OwnerID,
		)
	}
	return job, nil
}

// Status returns the terminal read contract for id. Terminal statuses are served from
// the status cache when present; cache failures fall through to the database.
func (s *JobService) Status(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ValidationField("id", "job id is required")
	}

	if cached, err := s.cache.Get(ctx, id); err != nil {
		s.warn(ctx, "status cache read failed", "job_id", id, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	resp := job.StatusResponse()
	if err := s.cache.Put(ctx, resp); err != nil {
		s.warn(ctx, "status cache write failed", "job_id", id, "error", err)
	}
	return resp, nil
}

// ListForOwner lists jobs belonging to ownerID, newest first.
func (s *JobService) ListForOwner(ctx context.Context, ownerID string, opts model.JobListOptions) ([]*model.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.ValidationField("owner_id", "owner id is required")
	}
	opts.OwnerID = ownerID

	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs for owner %s: %w", ownerID, err)
	}
	return jobs, nil
}

// Stats returns job counts per status. An empty ownerID counts every job.
func (s *JobService) Stats(ctx context.Context, ownerID string) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

func (s *JobService) warn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}
