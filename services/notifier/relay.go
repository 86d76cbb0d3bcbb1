// Package notifier relays lifecycle events from the event bus to a delivery
// channel such as email or a webhook.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/kafka"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/pkg/retry"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// RateLimiter bounds deliveries per channel.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Relay consumes events and delivers each through one sink. Events that cannot
// be decoded or delivered go to the dead-letter producer so the partition
// keeps moving.
type Relay struct {
	consumer kafka.Consumer
	sink     notify.Sink
	dlq      kafka.Producer
	limiter  RateLimiter // nil = disabled
	retries  retry.Config
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

func WithRateLimiter(l RateLimiter) Option { return func(r *Relay) { r.limiter = l } }
func WithLogger(l *slog.Logger) Option     { return func(r *Relay) { r.logger = l } }

// WithRetries sets the delivery attempt budget per event.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(r *Relay) {
		r.retries.MaxAttempts = attempts
		r.retries.BaseDelay = baseDelay
	}
}

// WithTimeout bounds one delivery, retries included.
func WithTimeout(d time.Duration) Option { return func(r *Relay) { r.timeout = d } }

// NewRelay wires consumer to sink. dlq receives undeliverable events.
func NewRelay(consumer kafka.Consumer, sink notify.Sink, dlq kafka.Producer, opts ...Option) *Relay {
	r := &Relay{
		consumer: consumer,
		sink:     sink,
		dlq:      dlq,
		retries:  retry.Config{MaxAttempts: 3, BaseDelay: time.Second},
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run starts consuming. Blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	return r.consumer.Subscribe(ctx, r.handle)
}

func (r *Relay) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := telemetry.Tracer("notifier").Start(ctx, "notifier.relay")
	defer span.End()

	var ev notify.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.Kind == "" {
		if err == nil {
			err = errors.New("event without kind")
		}
		r.logger.Error("malformed event, sending to DLQ",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed event")
		return r.toDLQ(ctx, msg, "malformed")
	}

	span.SetAttributes(
		attribute.String("task.id", ev.TaskID),
		attribute.String("event.kind", string(ev.Kind)),
	)
	log := r.logger.With(
		slog.String("task_id", ev.TaskID),
		slog.String("kind", string(ev.Kind)),
		slog.String("channel", r.sink.Channel()),
	)

	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx, r.sink.Channel())
		if err != nil {
			// A limiter outage must not stop notifications.
			log.Error("rate limiter error", slog.String("error", err.Error()))
		} else if !allowed {
			log.Warn("rate limit exceeded, sending to DLQ")
			span.SetStatus(codes.Error, "rate limit exceeded")
			return r.toDLQ(ctx, msg, "rate_limited")
		}
	}

	deliverCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	cfg := r.retries
	cfg.OnRetry = func(attempt int, err error) {
		log.Warn("delivery attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	if err := retry.Do(deliverCtx, cfg, func(ctx context.Context) error { return r.sink.Notify(ctx, ev) }); err != nil {
		nf := &domain.NotificationFailureError{Channel: r.sink.Channel(), Event: string(ev.Kind), Err: err}
		log.Error("delivery failed, sending to DLQ", slog.String("error", nf.Error()))
		span.RecordError(nf)
		span.SetStatus(codes.Error, "delivery failed")
		telemetry.Notifications.WithLabelValues(r.sink.Channel(), "error").Inc()
		return r.toDLQ(ctx, msg, "dead_lettered")
	}

	telemetry.Notifications.WithLabelValues(r.sink.Channel(), "ok").Inc()
	telemetry.RelayedEvents.WithLabelValues(string(ev.Kind), "delivered").Inc()
	log.Info("event delivered")
	return nil
}

// toDLQ republishes the raw message. A failed DLQ publish is returned so the
// offset is not committed.
func (r *Relay) toDLQ(ctx context.Context, msg kafka.Message, result string) error {
	kind := msg.Kind
	if kind == "" {
		kind = "unknown"
	}
	telemetry.RelayedEvents.WithLabelValues(kind, result).Inc()
	if err := r.dlq.Publish(ctx, string(msg.Key), kind, msg.Value); err != nil {
		r.logger.Error("failed to publish to DLQ", slog.String("error", err.Error()))
		return fmt.Errorf("publish to DLQ: %w", err)
	}
	return nil
}
