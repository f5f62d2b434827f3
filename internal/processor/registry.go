// Package processor maps job types to the handlers that execute them.
//
// Handlers are registered once at process start. Both execution paths, the
// in-process task queue and the durable worker, dispatch through a Registry, so
// they never depend on a concrete generation backend.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

var (
	// ErrNoProcessor is returned when no handler is registered for a job type.
	ErrNoProcessor = errors.New("no processor registered")
	// ErrInvalidPayload is returned when a payload does not decode into, or validate as,
	// the shape its handler expects.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrDuplicateProcessor is returned when a job type is registered twice.
	ErrDuplicateProcessor = errors.New("processor already registered")
	// ErrProcessorPanic wraps a panic recovered from a handler.
	ErrProcessorPanic = errors.New("processor panicked")
)

// HandlerFunc executes one job. ownerID is the submitting principal, not the worker identity.
type HandlerFunc func(ctx context.Context, ownerID string, payload json.RawMessage) (json.RawMessage, error)

// Options configures a Registry.
type Options struct {
	Logger *slog.Logger
}

// Registry is safe for concurrent Dispatch calls.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]HandlerFunc
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[model.JobType]HandlerFunc),
		logger:   logger.With("component", "processor_registry"),
	}
}

// Handle registers a raw handler for jobType.
func (r *Registry) Handle(jobType model.JobType, h HandlerFunc) error {
	if !jobType.Valid() {
		return fmt.Errorf("register processor: invalid job type %q", jobType)
	}
	if h == nil {
		return fmt.Errorf("register processor %q: handler is nil", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[jobType]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateProcessor, jobType)
	}
	r.handlers[jobType] = h
	r.logger.Debug("processor registered", "job_type", jobType)
	return nil
}

// Register adds a typed handler. The raw payload is decoded into P and validated before fn
// runs, and the returned R is marshalled as the job result.
func Register[P job.Payload, R any](
	r *Registry,
	jobType model.JobType,
	fn func(ctx context.Context, payload P, ownerID string) (R, error),
) error {
	if fn == nil {
		return fmt.Errorf("register processor %q: handler is nil", jobType)
	}
	return r.Handle(jobType, func(ctx context.Context, ownerID string, raw json.RawMessage) (json.RawMessage, error) {
		var p P
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if err := validatePayload(p); err != nil {
			return nil, err
		}
		out, err := fn(ctx, p, ownerID)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal %s result: %w", jobType, err)
		}
		return b, nil
	})
}

// Dispatch runs the handler registered for jobType. A panicking handler is reported
// as an error wrapping ErrProcessorPanic.
func (r *Registry) Dispatch(
	ctx context.Context,
	jobType model.JobType,
	ownerID string,
	payload json.RawMessage,
) (result json.RawMessage, err error) {
	r.mu.RLock()
	h, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for job type %q", ErrNoProcessor, jobType)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "processor panic",
				"job_type", jobType,
				"panic", rec,
				"stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, rec)
		}
	}()
	return h(ctx, ownerID, payload)
}

// Has reports whether a handler is registered for jobType.
func (r *Registry) Has(jobType model.JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[jobType]
	return ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []model.JobType {
	r.mu.RLock()
	types := make([]model.JobType, 0, len(r.handlers))
	for jt := range r.handlers {
		types = append(types, jt)
	}
	r.mu.RUnlock()
	slices.Sort(types)
	return types
}
