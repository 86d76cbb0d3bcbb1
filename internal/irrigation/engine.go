// Package irrigation drives irrigation tasks through their lifecycle: execution
// with bounded retries, manual stop, weather postponement, the overdue sweep
// and explicit status overrides.
package irrigation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/actuator"
	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/lock"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/internal/weather"
	"github.com/petrovskifilip/agri-management-system/pkg/retry"
)

// PostponeBy is how far a rain-deferred irrigation is pushed back.
const PostponeBy = 2 * time.Hour

// Store is the slice of persistence the engine needs.
type Store interface {
	store.IrrigationStore
	store.ParcelStore
}

// Engine owns every mutation of irrigation records. All read-modify-write
// cycles run under a per-task lock.
type Engine struct {
	store    Store
	actuator actuator.Actuator
	gate     weather.Gate
	notifier notify.Emitter
	locker   lock.Locker
	clock    clock.Clock
	policy   retry.Policy
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithPolicy(p retry.Policy) Option           { return func(e *Engine) { e.policy = p } }
func WithClock(c clock.Clock) Option             { return func(e *Engine) { e.clock = c } }
func WithLocker(l lock.Locker) Option            { return func(e *Engine) { e.locker = l } }
func WithGate(g weather.Gate) Option             { return func(e *Engine) { e.gate = g } }
func WithNotifier(n notify.Emitter) Option       { return func(e *Engine) { e.notifier = n } }
func WithActuatorTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }
func WithLogger(l *slog.Logger) Option           { return func(e *Engine) { e.logger = l } }

// NewEngine constructs an Engine. Without options it uses the default retry
// policy, the system clock, an in-process lock, a gate that always proceeds
// and a notifier that drops events.
func NewEngine(st Store, act actuator.Actuator, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		actuator: act,
		gate:     weather.NewFailOpen(weather.Static{Decision: weather.Proceed("weather check disabled")}, nil),
		notifier: notify.Discard{},
		locker:   lock.NewKeyed(),
		clock:    clock.System{},
		policy:   retry.DefaultPolicy(),
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the retry policy in effect.
func (e *Engine) Policy() retry.Policy { return e.policy }

// Get returns the irrigation with the given id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Irrigation, error) {
	return e.store.GetIrrigation(ctx, id)
}

// ListByParcel returns the parcel's irrigations ordered by status priority,
// then scheduled time.
func (e *Engine) ListByParcel(ctx context.Context, parcelID string) ([]*domain.Irrigation, error) {
	if _, err := e.store.GetParcel(ctx, parcelID); err != nil {
		return nil, err
	}
	items, err := e.store.ListIrrigations(ctx, parcelID)
	if err != nil {
		return nil, fmt.Errorf("list irrigations: %w", err)
	}
	store.SortByPriority(items)
	return items, nil
}

// UpdateStatus applies an explicit status override. Only edges of the
// irrigation lifecycle are accepted. IN_PROGRESS is owned by Execute and Stop,
// so it can be neither the source nor the target of an override.
func (e *Engine) UpdateStatus(ctx context.Context, id string, to domain.IrrigationStatus) (*domain.Irrigation, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("unknown irrigation status %q", to)
	}

	var out *domain.Irrigation
	err := e.withTask(ctx, id, func(irr *domain.Irrigation) error {
		event, ok := domain.IrrigationEventFor(irr.Status, to)
		if !ok || to == domain.IrrigationInProgress || irr.Status == domain.IrrigationInProgress {
			return &domain.InvalidStateTransitionError{
				Kind:  domain.KindIrrigation,
				ID:    id,
				From:  string(irr.Status),
				Event: "set status " + string(to),
			}
		}
		if err := irr.Fire(event); err != nil {
			return err
		}
		now := e.clock.Now()
		irr.StatusDescription = to.Description()
		irr.UpdatedAt = now
		if to.IsTerminal() {
			irr.FinishedAt = &now
		}
		saved, err := e.store.SaveIrrigation(ctx, irr)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("irrigation status updated",
		slog.String("task_id", id),
		slog.String("status", string(out.Status)),
	)
	if out.Status == domain.IrrigationFailed {
		e.emit(ctx, notify.IrrigationFailed, out, "Marked as failed by status update")
	}
	return out, nil
}

// withTask loads the task under its lock and hands it to fn.
func (e *Engine) withTask(ctx context.Context, id string, fn func(*domain.Irrigation) error) error {
	unlock, err := e.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return fmt.Errorf("lock irrigation %s: %w", id, err)
	}
	defer unlock()

	irr, err := e.store.GetIrrigation(ctx, id)
	if err != nil {
		return err
	}
	return fn(irr)
}

func (e *Engine) emit(ctx context.Context, kind notify.EventKind, irr *domain.Irrigation, details string) {
	e.notifier.Emit(ctx, notify.ForIrrigation(kind, irr, e.parcelName(ctx, irr.ParcelID), details, e.clock.Now()))
}

func (e *Engine) parcelName(ctx context.Context, parcelID string) string {
	p, err := e.store.GetParcel(ctx, parcelID)
	if err != nil {
		return ""
	}
	return p.Name
}

func lockKey(id string) string { return "irrigation:" + id }
