// Package notify defines the failure event emitted when a job ends in the failed state.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Sources identify which execution path produced a failure.
const (
	SourceWorker     = "worker"
	SourceLocalQueue = "local_queue"
	SourceSweeper    = "sweeper"
)

// JobFailurePayload is the canonical failure event.
type JobFailurePayload struct {
	JobID      string
	JobType    string
	OwnerID    string
	Source     string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Notifier is what the queue, worker and sweeper call when a job fails.
type Notifier interface {
	NotifyJobFailure(ctx context.Context, payload JobFailurePayload)
}
