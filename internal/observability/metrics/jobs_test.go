package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{
		Path:       PathWorker,
		JobType:    "echo",
		Transition: TransitionFailed,
		Result:     ResultError,
		Duration:   25 * time.Millisecond,
		Err:        errors.New("boom"),
	})

	counts := rec.Find("job.transition", map[string]string{"transition": TransitionFailed, "path": PathWorker})
	require.Len(t, counts, 1)
	assert.Equal(t, "errors_errorstring", counts[0].Tags["error_class"])
	assert.Len(t, rec.Find("job.duration", nil), 1)
}

func TestEmitJobLifecycleNoDurationNoErrorClass(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{JobType: "echo", Transition: TransitionClaimed, Result: ResultNoop})

	all := rec.Metrics()
	require.Len(t, all, 1)
	assert.NotContains(t, all[0].Tags, "error_class")
	assert.NotContains(t, all[0].Tags, "path")
}

func TestEmitSweep(t *testing.T) {
	var rec statsd.Recorder
	EmitSweep(&rec, SweepMetric{Step: "recover_stale", Count: 4, Duration: time.Second})
	EmitSweep(&rec, SweepMetric{Step: "delete_done", Err: errors.New("db down")})

	ok := rec.Find("sweeper.rows", map[string]string{"step": "recover_stale", "result": ResultSuccess})
	require.Len(t, ok, 1)
	assert.InDelta(t, 4.0, ok[0].Value, 0)
	assert.Len(t, rec.Find("sweeper.rows", map[string]string{"result": ResultError}), 1)
}

func TestNilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitJobLifecycle(nil, JobMetric{})
		EmitSweep(nil, SweepMetric{})
		EmitQueueDepth(nil, 1, 2)
	})
}
