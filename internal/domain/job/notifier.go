package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the store reports that a job was queued.
type Waiter interface {
	WaitForNotification(ctx context.Context) error
}

// Notifier fans queued-job wake-ups out to the worker's poll loops.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	Waiter Waiter
	Logger *slog.Logger
	// WaitWindow bounds one LISTEN wait. Loops are woken when it expires so a missed
	// notification costs at most one window. Defaults to 1m.
	WaitWindow time.Duration
	// Backoff is the first pause after a listener error; it doubles per consecutive
	// error up to MaxBackoff. Defaults to 250ms and 5s.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultNotifier shares one LISTEN connection between all subscribed poll loops. The
// listener runs only while at least one loop is subscribed.
type DefaultNotifier struct {
	waiter     Waiter
	logger     *slog.Logger
	waitWindow time.Duration
	backoff    time.Duration
	maxBackoff time.Duration

	wakeups atomic.Uint64

	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	cancel context.CancelFunc
}

// NewNotifier returns a notifier reading wake-ups from opts.Waiter.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		logger:     logger.With("component", "job_notifier"),
		waitWindow: orDuration(opts.WaitWindow, time.Minute),
		backoff:    orDuration(opts.Backoff, 250*time.Millisecond),
		maxBackoff: orDuration(opts.MaxBackoff, 5*time.Second),
		subs:       make(map[chan struct{}]struct{}),
	}
	n.maxBackoff = max(n.maxBackoff, n.backoff)
	return n, nil
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

// Subscribe registers a wake-up channel with a buffer of one, so a burst of inserts
// collapses into one pending signal. The returned func unsubscribes and is idempotent.
func (n *DefaultNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		go n.listen(ctx)
	}

	ch := make(chan struct{}, 1)
	n.subs[ch] = struct{}{}

	return func() { n.unsubscribe(ch) }, ch
}

func (n *DefaultNotifier) unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[ch]; !ok {
		return
	}
	delete(n.subs, ch)
	drainAndClose(ch)
	if len(n.subs) == 0 {
		n.stopListener()
	}
}

// StopAll stops the listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopListener()
	for ch := range n.subs {
		delete(n.subs, ch)
		drainAndClose(ch)
	}
}

// Subscribers reports how many loops are currently subscribed.
func (n *DefaultNotifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Wakeups counts broadcasts since construction.
func (n *DefaultNotifier) Wakeups() uint64 {
	return n.wakeups.Load()
}

func (n *DefaultNotifier) stopListener() {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

func (n *DefaultNotifier) listen(ctx context.Context) {
	n.logger.Debug("listener started")
	defer n.logger.Debug("listener stopped")

	failures := 0
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx)
		cancel()

		// Loops re-check the store on every wake-up, so errors and window expiry wake them too.
		n.broadcast()

		switch {
		case err == nil, ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
			failures = 0
			continue
		}

		failures++
		delay := n.backoffFor(failures)
		n.logger.Warn("listen for queued jobs failed", "error", err, "failures", failures, "retry_in", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *DefaultNotifier) backoffFor(failures int) time.Duration {
	d := n.backoff
	for i := 1; i < failures && d < n.maxBackoff; i++ {
		d *= 2
	}
	return min(d, n.maxBackoff)
}

func (n *DefaultNotifier) broadcast() {
	n.wakeups.Add(1)

	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose drops a pending signal so a receiver sees the close on its next read.
func drainAndClose(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
	close(ch)
}

var _ Notifier = (*DefaultNotifier)(nil)
