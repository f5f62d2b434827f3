// Package jobrunner runs the durable polling worker: it claims queued rows from the job
// store one at a time and drives each through its processor to a terminal status.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// ErrAlreadyRunning is returned by Run when the runner has already been started.
var ErrAlreadyRunning = errors.New("job runner already running")

// Dispatcher executes a job payload. processor.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType model.JobType, ownerID string, payload json.RawMessage) (json.RawMessage, error)
}

// Recoverer returns abandoned jobs to the queue before polling starts.
type Recoverer interface {
	RecoverOnStart(ctx context.Context)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Store      core.JobStore // Required
	Processors Dispatcher    // Required

	// Optional collaborators
	Recoverer       Recoverer
	Limits          core.ConfigReader
	Notifier        job.Notifier
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier notify.Notifier
	StatusCache     *core.JobStatusCache

	// PollInterval is the idle wait when nothing is queued; defaults to 1s.
	PollInterval time.Duration
	// ErrorBackoff is the pause after an unexpected error; defaults to 5s.
	ErrorBackoff time.Duration
	// JobTimeout bounds one processor call. Zero means no deadline.
	JobTimeout time.Duration
	// Concurrency is the number of independent poll loops; defaults to 1.
	Concurrency int
}

// Runner polls the job store and executes claimed jobs. A Runner is single-use.
type Runner struct {
	store       core.JobStore
	processors  Dispatcher
	recoverer   Recoverer
	limits      core.ConfigReader
	notifier    job.Notifier
	logger      *slog.Logger
	metrics     statsd.Sink
	failures    notify.Notifier
	statusCache *core.JobStatusCache

	pollInterval time.Duration
	errorBackoff time.Duration
	jobTimeout   time.Duration
	workers      int

	mu   sync.Mutex
	done chan struct{}
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Processors == nil {
		return nil, errors.New("processor registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Duration(model.DefaultJobPollIntervalMS) * time.Millisecond
	}
	backoff := opts.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Duration(model.DefaultJobErrorBackoffMS) * time.Millisecond
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	return &Runner{
		store:        opts.Store,
		processors:   opts.Processors,
		recoverer:    opts.Recoverer,
		limits:       opts.Limits,
		notifier:     opts.Notifier,
		logger:       logger.With("component", "job_runner"),
		metrics:      opts.Metrics,
		failures:     opts.FailureNotifier,
		statusCache:  opts.StatusCache,
		pollInterval: poll,
		errorBackoff: backoff,
		jobTimeout:   max(opts.JobTimeout, 0),
		workers:      workers,
	}, nil
}

// Start launches the poll loops in the background and returns a channel closed once
// they have all exited. Repeated calls return the same channel.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return r.done
	}
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
	return r.done
}

// Run starts the runner and blocks until ctx is cancelled and in-flight jobs finish.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	started := r.done != nil
	r.mu.Unlock()
	if started {
		return ErrAlreadyRunning
	}
	<-r.Start(ctx)
	return nil
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if r.recoverer != nil {
		r.recoverer.RecoverOnStart(ctx)
	}

	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers,
		"poll_interval", r.pollInterval,
		"job_timeout", r.jobTimeout,
	)

	var wg sync.WaitGroup
	for i := range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx, i)
		}()
	}
	wg.Wait()

	r.logger.InfoContext(ctx, "job runner stopped")
}

func (r *Runner) workerLoop(ctx context.Context, worker int) {
	var wake <-chan struct{}
	if r.notifier != nil {
		unsub, ch := r.notifier.Subscribe()
		defer unsub()
		wake = ch
	}

	for ctx.Err() == nil {
		worked, err := r.safeCycle(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			backoff := r.errorBackoffFor(ctx)
			r.logger.ErrorContext(ctx, "job runner cycle failed",
				"worker", worker,
				"error", err,
				"backoff", backoff,
			)
			sleep(ctx, backoff, nil)
		case !worked:
			sleep(ctx, r.pollIntervalFor(ctx), wake)
		}
	}
}

// safeCycle runs one cycle and converts a panic escaping it into an error.
func (r *Runner) safeCycle(ctx context.Context) (worked bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "job runner panic", "panic", rec, "stack", string(debug.Stack()))
			worked, err = false, fmt.Errorf("job runner panic: %v", rec)
		}
	}()
	return r.cycle(ctx)
}

// cycle selects the oldest queued job and tries to claim it. It reports whether there
// was something to work on; losing the claim race counts as work so the loop retries
// immediately.
func (r *Runner) cycle(ctx context.Context) (bool, error) {
	candidate, err := r.store.SelectOldestQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("select oldest queued: %w", err)
	}
	if candidate == nil {
		return false, nil
	}

	n, err := r.store.Claim(ctx, candidate.ID)
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", candidate.ID, err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "claim lost to another worker", "job_id", candidate.ID)
		r.emit(candidate, metrics.TransitionClaimed, metrics.ResultNoop, 0, nil)
		return true, nil
	}
	r.emit(candidate, metrics.TransitionClaimed, metrics.ResultSuccess, 0, nil)

	return true, r.process(ctx, candidate)
}

// process executes a claimed job and writes its terminal status. The execution context
// survives shutdown so an in-flight job drains instead of being abandoned.
func (r *Runner) process(ctx context.Context, j *model.Job) error {
	execCtx := context.WithoutCancel(ctx)
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, r.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	env, err := job.DecodeEnvelope(j.Payload)
	if err != nil {
		return r.fail(execCtx, j, err, metrics.TransitionFailed, time.Since(start))
	}

	owner := env.OwnerID
	if owner == "" {
		owner = j.OwnerID
	}

	result, err := r.processors.Dispatch(execCtx, j.Type, owner, j.Payload)
	elapsed := time.Since(start)
	if err != nil {
		transition := metrics.TransitionFailed
		if r.jobTimeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			transition = metrics.TransitionTimeout
			err = fmt.Errorf("job timed out after %s: %w", r.jobTimeout, err)
		}
		return r.fail(execCtx, j, err, transition, elapsed)
	}

	finalizeCtx := context.WithoutCancel(ctx)
	if err := r.store.Finalize(finalizeCtx, model.FinalizeParams{
		ID:     j.ID,
		Status: model.JobStatusDone,
		Result: result,
	}); err != nil {
		r.emit(j, metrics.TransitionDone, metrics.ResultError, elapsed, err)
		return fmt.Errorf("finalize job %s: %w", j.ID, err)
	}

	r.emit(j, metrics.TransitionDone, metrics.ResultSuccess, elapsed, nil)
	r.logger.DebugContext(ctx, "job done", "job_id", j.ID, "job_type", j.Type, "owner_id", owner, "duration", elapsed)
	r.cacheStatus(finalizeCtx, j.ID, model.JobStatusDone, result, "")
	return nil
}

func (r *Runner) fail(ctx context.Context, j *model.Job, cause error, transition string, elapsed time.Duration) error {
	// The execution context may have expired; the terminal write must still happen.
	writeCtx := context.WithoutCancel(ctx)
	msg := cause.Error()
	if err := r.store.Finalize(writeCtx, model.FinalizeParams{
		ID:     j.ID,
		Status: model.JobStatusFailed,
		Error:  msg,
	}); err != nil {
		r.emit(j, transition, metrics.ResultError, elapsed, err)
		return fmt.Errorf("finalize failed job %s: %w", j.ID, errors.Join(err, cause))
	}

	r.emit(j, transition, metrics.ResultError, elapsed, cause)
	r.logger.WarnContext(writeCtx, "job failed", "job_id", j.ID, "job_type", j.Type, "error", msg)
	r.cacheStatus(writeCtx, j.ID, model.JobStatusFailed, nil, msg)

	if r.failures != nil {
		r.failures.NotifyJobFailure(writeCtx, notify.JobFailurePayload{
			JobID:      j.ID,
			JobType:    string(j.Type),
			OwnerID:    j.OwnerID,
			Source:     notify.SourceWorker,
			Error:      msg,
			ErrorClass: obserrors.Classify(cause),
			Severity:   notify.SeverityCritical,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

func (r *Runner) cacheStatus(ctx context.Context, id string, status model.JobStatus, result json.RawMessage, msg string) {
	if r.statusCache == nil {
		return
	}
	now := time.Now().UTC()
	resp := &model.JobStatusResponse{ID: id, Status: status, Result: result, CompletedAt: &now}
	if msg != "" {
		resp.Error = &msg
	}
	if err := r.statusCache.Put(ctx, resp); err != nil {
		r.logger.WarnContext(ctx, "status cache write failed", "job_id", id, "error", err)
	}
}

func (r *Runner) emit(j *model.Job, transition, result string, elapsed time.Duration, err error) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Path:       metrics.PathWorker,
		JobType:    string(j.Type),
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})
}

func (r *Runner) pollIntervalFor(ctx context.Context) time.Duration {
	return r.tunable(ctx, model.LimitJobPollIntervalMS, r.pollInterval)
}

func (r *Runner) errorBackoffFor(ctx context.Context) time.Duration {
	return r.tunable(ctx, model.LimitJobErrorBackoffMS, r.errorBackoff)
}

// tunable reads a millisecond limit, falling back to the configured duration.
func (r *Runner) tunable(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if r.limits == nil {
		return fallback
	}
	ms := r.limits.Get(ctx, key, fallback.Milliseconds())
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// sleep waits for d, a wake-up or cancellation, whichever comes first.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}
