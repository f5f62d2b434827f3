// Package taskqueue runs jobs inside the current process with a bounded number of
// concurrent executions and a per-job deadline.
//
// Jobs live only in memory: they are lost on restart and invisible to other processes.
// Use the durable worker for work that must survive a crash.
package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

var (
	// ErrJobTimeout is recorded when a job exceeds the queue timeout.
	ErrJobTimeout = errors.New("job timed out")
	// ErrQueueClosed is returned by Enqueue and Run after Run has returned.
	ErrQueueClosed = errors.New("task queue closed")
	// ErrAlreadyRunning is returned when Run is called while another Run is active.
	ErrAlreadyRunning = errors.New("task queue already running")
	// ErrShutdown is recorded for jobs interrupted by queue shutdown.
	ErrShutdown = errors.New("task queue shut down before job finished")
)

const (
	defaultConcurrency = 3
	defaultTimeout     = 120 * time.Second
)

// Dispatcher executes a job payload. processor.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType model.JobType, ownerID string, payload json.RawMessage) (json.RawMessage, error)
}

// Data is the caller-supplied part of a job.
type Data struct {
	Type    model.JobType
	Payload json.RawMessage
}

// Options configures a Queue.
type Options struct {
	Processors  Dispatcher
	Concurrency int
	Timeout     time.Duration
	// CleanupInterval is how often Run evicts old terminal jobs. Zero means Timeout.
	CleanupInterval time.Duration
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier notify.Notifier
	Now             func() time.Time
}

// Queue is an in-memory job scheduler. Construct it with New and drive it with Run.
type Queue struct {
	processors      Dispatcher
	concurrency     int
	timeout         time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger
	metrics         statsd.Sink
	notifier        notify.Notifier
	now             func() time.Time

	sem  *semaphore.Weighted
	wake chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	jobs     map[string]*model.Job
	order    []string
	backlog  []string
	inFlight int
	running  bool
	closed   bool
}

// New creates a Queue. Processors is required.
func New(opts Options) (*Queue, error) {
	if opts.Processors == nil {
		return nil, errors.New("taskqueue: processors are required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = timeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Queue{
		processors:      opts.Processors,
		concurrency:     concurrency,
		timeout:         timeout,
		cleanupInterval: cleanup,
		logger:          logger.With("component", "task_queue"),
		metrics:         opts.Metrics,
		notifier:        opts.FailureNotifier,
		now:             now,
		sem:             semaphore.NewWeighted(int64(concurrency)),
		wake:            make(chan struct{}, 1),
		jobs:            make(map[string]*model.Job),
	}, nil
}

// Enqueue adds a queued job to the end of the backlog and returns it immediately.
// An empty id is replaced with a UUID. Enqueueing an id that is already known returns
// the existing job unchanged.
func (q *Queue) Enqueue(id, ownerID string, data Data) (model.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return model.Job{}, ErrQueueClosed
	}
	if existing, ok := q.jobs[id]; ok {
		j := cloneJob(existing)
		q.mu.Unlock()
		return j, nil
	}

	now := q.now()
	j := &model.Job{
		ID:        id,
		OwnerID:   ownerID,
		Type:      data.Type,
		Status:    model.JobStatusQueued,
		Payload:   bytes.Clone(data.Payload),
		CreatedAt: now,
		UpdatedAt: &now,
	}
	q.jobs[id] = j
	q.order = append(q.order, id)
	q.backlog = append(q.backlog, id)
	out := cloneJob(j)
	q.mu.Unlock()

	q.signal()
	metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
		Path:       metrics.PathLocalQueue,
		JobType:    string(data.Type),
		Transition: metrics.TransitionEnqueued,
		Result:     metrics.ResultSuccess,
	})
	q.logger.Debug("job enqueued", "job_id", id, "job_type", data.Type, "owner_id", ownerID)
	return out, nil
}

// GetJob returns a copy of the job with the given id.
func (q *Queue) GetJob(id string) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return cloneJob(j), true
}

// GetJobsFor returns copies of the owner's jobs in enqueue order.
func (q *Queue) GetJobsFor(ownerID string) []model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.Job
	for _, id := range q.order {
		if j := q.jobs[id]; j != nil && j.OwnerID == ownerID {
			out = append(out, cloneJob(j))
		}
	}
	return out
}

// Stats counts the jobs currently held by the queue.
func (q *Queue) Stats() model.JobStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s model.JobStats
	for _, j := range q.jobs {
		s.Add(j.Status, 1)
	}
	return s
}

// Run schedules jobs until ctx is cancelled. It never waits on a job's completion while
// scheduling. On return, in-flight jobs have been interrupted and finalized and the
// queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	case q.running:
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "task queue started",
		"concurrency", q.concurrency,
		"timeout", q.timeout,
		"cleanup_interval", q.cleanupInterval)

	ticker := time.NewTicker(q.cleanupInterval)
	defer ticker.Stop()

	for {
		q.admit(ctx)
		select {
		case <-ctx.Done():
			q.wg.Wait()
			q.mu.Lock()
			q.running = false
			q.closed = true
			q.mu.Unlock()
			q.logger.Info("task queue stopped")
			return nil
		case <-q.wake:
		case <-ticker.C:
			if n := q.Cleanup(); n > 0 {
				q.logger.DebugContext(ctx, "evicted finished jobs", "count", n)
			}
		}
	}
}

// admit moves jobs from the backlog into flight while slots are free.
func (q *Queue) admit(ctx context.Context) {
	defer q.emitDepth()
	for ctx.Err() == nil {
		if !q.sem.TryAcquire(1) {
			return
		}
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.mu.Unlock()
			q.sem.Release(1)
			return
		}
		id := q.backlog[0]
		q.backlog[0] = ""
		q.backlog = q.backlog[1:]

		j := q.jobs[id]
		now := q.now()
		j.Status = model.JobStatusProcessing
		j.StartedAt = &now
		j.UpdatedAt = &now
		snapshot := cloneJob(j)
		q.inFlight++
		q.mu.Unlock()

		q.wg.Add(1)
		go q.execute(ctx, snapshot)
	}
}

type outcome struct {
	result json.RawMessage
	err    error
}

// execute races the processor against the job deadline. The slot is released as soon
// as the race resolves; a processor that ignores cancellation keeps running detached.
func (q *Queue) execute(ctx context.Context, j model.Job) {
	defer q.wg.Done()
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("processor panicked: %v", rec)}
			}
		}()
		res, err := q.processors.Dispatch(jobCtx, j.Type, j.OwnerID, j.Payload)
		done <- outcome{result: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-jobCtx.Done():
		out.err = jobCtx.Err()
	}
	raceErr := jobCtx.Err()
	cancel()

	// A processor that returns its context error lost the race to the deadline or to shutdown.
	timedOut := false
	if out.err != nil && raceErr != nil && isContextErr(out.err) {
		if ctx.Err() != nil {
			out.err = ErrShutdown
		} else {
			timedOut = true
			out.err = fmt.Errorf("%w after %s", ErrJobTimeout, q.timeout)
		}
	}

	final := q.finish(j.ID, out)
	q.sem.Release(1)
	q.signal()

	q.report(ctx, final, out.err, timedOut, time.Since(start))
}

func (q *Queue) finish(id string, out outcome) model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inFlight--
	j := q.jobs[id]
	now := q.now()
	j.CompletedAt = &now
	j.UpdatedAt = &now
	if out.err != nil {
		msg := out.err.Error()
		j.Status = model.JobStatusFailed
		j.Error = &msg
		j.Result = nil
	} else {
		j.Status = model.JobStatusDone
		j.Result = out.result
		j.Error = nil
	}
	return cloneJob(j)
}

func (q *Queue) report(ctx context.Context, j model.Job, err error, timedOut bool, elapsed time.Duration) {
	m := metrics.JobMetric{
		Path:     metrics.PathLocalQueue,
		JobType:  string(j.Type),
		Duration: elapsed,
		Result:   metrics.ResultSuccess,
	}
	switch {
	case err == nil:
		m.Transition = metrics.TransitionDone
		q.logger.DebugContext(ctx, "job done", "job_id", j.ID, "job_type", j.Type, "duration", elapsed)
	case timedOut:
		m.Transition, m.Result, m.Err = metrics.TransitionTimeout, metrics.ResultError, err
		q.logger.WarnContext(ctx, "job timed out", "job_id", j.ID, "job_type", j.Type, "timeout", q.timeout)
	default:
		m.Transition, m.Result, m.Err = metrics.TransitionFailed, metrics.ResultError, err
		q.logger.WarnContext(ctx, "job failed", "job_id", j.ID, "job_type", j.Type, "error", err)
	}
	metrics.EmitJobLifecycle(q.metrics, m)

	if err != nil && q.notifier != nil && !errors.Is(err, ErrShutdown) {
		q.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:   j.ID,
			JobType: string(j.Type),
			OwnerID: j.OwnerID,
			Source:  notify.SourceLocalQueue,
			Error:   err.Error(),
		})
	}
}

// Cleanup evicts terminal jobs that completed more than twice the timeout ago and
// returns how many were removed. Queued and processing jobs are never evicted.
func (q *Queue) Cleanup() int {
	cutoff := q.now().Add(-2 * q.timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, j := range q.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		kept := q.order[:0]
		for _, id := range q.order {
			if _, ok := q.jobs[id]; ok {
				kept = append(kept, id)
			}
		}
		clear(q.order[len(kept):])
		q.order = kept
	}
	return removed
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) emitDepth() {
	if q.metrics == nil {
		return
	}
	q.mu.Lock()
	backlog, inFlight := len(q.backlog), q.inFlight
	q.mu.Unlock()
	metrics.EmitQueueDepth(q.metrics, backlog, inFlight)
}

func cloneJob(j *model.Job) model.Job {
	out := *j
	out.Payload = bytes.Clone(j.Payload)
	out.Result = bytes.Clone(j.Result)
	if j.Error != nil {
		msg := *j.Error
		out.Error = &msg
	}
	out.UpdatedAt = cloneTime(j.UpdatedAt)
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
