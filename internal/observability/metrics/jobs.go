// Package metrics emits the job queue's lifecycle and sweeper metrics.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job lifecycle transitions.
const (
	TransitionEnqueued  = "enqueued"
	TransitionClaimed   = "claimed"
	TransitionDone      = "done"
	TransitionFailed    = "failed"
	TransitionTimeout   = "timeout"
	TransitionRecovered = "recovered"
)

// Execution paths, used as the "path" tag.
const (
	PathWorker     = "worker"
	PathLocalQueue = "local_queue"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Path       string
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when Duration is set, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Path != "" {
		tags["path"] = in.Path
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, maps.Clone(tags))
	}
}

// SweepMetric describes one sweeper step.
type SweepMetric struct {
	Step     string
	Count    int64
	Duration time.Duration
	Err      error
}

// EmitSweep emits sweeper.rows and sweeper.duration for one step.
func EmitSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := map[string]string{"step": in.Step, "result": result}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("sweeper.rows", in.Count, tags)
	if in.Duration > 0 {
		sink.Timing("sweeper.duration", in.Duration, maps.Clone(tags))
	}
}

// EmitQueueDepth reports in-process queue occupancy.
func EmitQueueDepth(sink statsd.Sink, backlog, inFlight int) {
	if sink == nil {
		return
	}
	sink.Gauge("local_queue.backlog", float64(backlog), nil)
	sink.Gauge("local_queue.in_flight", float64(inFlight), nil)
}
