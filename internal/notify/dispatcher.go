package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/pkg/retry"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Dispatcher delivers events to a sink in the background. Failures are logged
// and counted; they never reach the caller.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	retries retry.Config
	slots   *semaphore.Weighted
	wg      sync.WaitGroup
}

var _ Emitter = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each delivery, retries included. Time spent waiting for
// a concurrency slot does not count.
func WithTimeout(d time.Duration) Option { return func(x *Dispatcher) { x.timeout = d } }

// WithRetries sets the attempt budget for each delivery.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(x *Dispatcher) {
		x.retries.MaxAttempts = attempts
		x.retries.BaseDelay = baseDelay
	}
}

// WithConcurrency caps in-flight deliveries.
func WithConcurrency(n int64) Option {
	return func(x *Dispatcher) { x.slots = semaphore.NewWeighted(n) }
}

func WithLogger(l *slog.Logger) Option { return func(x *Dispatcher) { x.logger = l } }

// NewDispatcher creates a Dispatcher for sink. Defaults: 30s timeout,
// 3 attempts starting at 1s, 8 concurrent deliveries.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
		retries: retry.Config{MaxAttempts: 3, BaseDelay: time.Second},
		slots:   semaphore.NewWeighted(8),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Emit schedules delivery and returns immediately. The caller's cancellation
// does not abort delivery; only the dispatcher timeout does.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.slots.Acquire(ctx, 1); err != nil {
			d.fail(ev, err)
			return
		}
		defer d.slots.Release(1)

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		logger := d.logger.With(
			slog.String("channel", d.sink.Channel()),
			slog.String("kind", string(ev.Kind)),
			slog.String("task_id", ev.TaskID),
		)
		cfg := d.retries
		cfg.OnRetry = func(attempt int, err error) {
			logger.Warn("notification attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		if err := retry.Do(ctx, cfg, func(ctx context.Context) error { return d.sink.Notify(ctx, ev) }); err != nil {
			d.fail(ev, err)
			return
		}
		telemetry.Notifications.WithLabelValues(d.sink.Channel(), "ok").Inc()
	}()
}

func (d *Dispatcher) fail(ev Event, err error) {
	telemetry.Notifications.WithLabelValues(d.sink.Channel(), "error").Inc()
	nf := &domain.NotificationFailureError{Channel: d.sink.Channel(), Event: string(ev.Kind), Err: err}
	d.logger.Error("notification dropped",
		slog.String("task_id", ev.TaskID),
		slog.String("error", nf.Error()),
	)
}

// Wait blocks until every emitted event has been delivered or dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Discard is an Emitter that drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
