package irrigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

var dueStatuses = []domain.IrrigationStatus{domain.IrrigationScheduled, domain.IrrigationRetrying}

// FindDue returns SCHEDULED and RETRYING irrigations scheduled at or before now.
func (e *Engine) FindDue(ctx context.Context, now time.Time) ([]*domain.Irrigation, error) {
	items, err := e.store.FindDueIrrigations(ctx, dueStatuses, now)
	if err != nil {
		return nil, fmt.Errorf("find due irrigations: %w", err)
	}
	return items, nil
}

// Process handles one due irrigation for the fine tick: the weather gate
// first, then an execution attempt unless rain deferred it. irr may be a
// stale copy; the stored task is re-checked under its lock and skipped when
// it is no longer due, so a retry delay set meanwhile is honoured.
func (e *Engine) Process(ctx context.Context, irr *domain.Irrigation) error {
	postponed, err := e.PostponeIfRaining(ctx, irr)
	if err != nil {
		return err
	}
	if postponed {
		return nil
	}
	_, err = e.execute(ctx, irr.ID, true)
	return err
}

// PostponeIfRaining consults the weather gate for the irrigation's parcel and,
// when rain is falling or expected within the hour, pushes the scheduled time
// back by PostponeBy without changing status. Parcels without coordinates are
// never checked.
func (e *Engine) PostponeIfRaining(ctx context.Context, irr *domain.Irrigation) (bool, error) {
	parcel, err := e.store.GetParcel(ctx, irr.ParcelID)
	if err != nil {
		return false, err
	}
	lat, lon, ok := parcel.Coordinates()
	if !ok {
		e.logger.Debug("parcel has no coordinates, skipping weather check",
			slog.String("task_id", irr.ID),
			slog.String("parcel_id", parcel.ID),
		)
		return false, nil
	}

	decision := e.gate.CheckRain(ctx, lat, lon)
	if !decision.ShouldPostpone() {
		return false, nil
	}

	reason := "rain expected in next hour"
	if decision.IsRainingNow {
		reason = "currently raining"
	}

	var out *domain.Irrigation
	err = e.withTask(ctx, irr.ID, func(cur *domain.Irrigation) error {
		if !isDue(cur, e.clock.Now()) {
			return nil
		}
		cur.ScheduledAt = cur.ScheduledAt.Add(PostponeBy)
		cur.StatusDescription = "Postponed by 2 hours - " + reason
		cur.UpdatedAt = e.clock.Now()
		saved, err := e.store.SaveIrrigation(ctx, cur)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved
		return nil
	})
	if err != nil {
		return false, err
	}
	if out == nil {
		return false, nil
	}

	telemetry.IrrigationPostponed.Inc()
	e.logger.Info("irrigation postponed",
		slog.String("task_id", out.ID),
		slog.String("parcel", parcel.Name),
		slog.String("reason", reason),
		slog.Time("scheduled_at", out.ScheduledAt),
	)
	details := out.StatusDescription
	if decision.Details != "" {
		details += ". " + decision.Details
	}
	e.notifier.Emit(ctx, notify.ForIrrigation(notify.IrrigationPostponed, out, parcel.Name, details, e.clock.Now()))
	return true, nil
}

// SweepOverdue fails every SCHEDULED or RETRYING irrigation whose scheduled
// time is at or before the policy's overdue deadline, whatever its retry
// count. It returns how many tasks were failed; per-task errors are logged
// and joined.
func (e *Engine) SweepOverdue(ctx context.Context) (int, error) {
	now := e.clock.Now()
	deadline := e.policy.OverdueDeadline(now)
	items, err := e.store.FindDueIrrigations(ctx, dueStatuses, deadline)
	if err != nil {
		return 0, fmt.Errorf("find overdue irrigations: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	e.logger.Warn("overdue irrigations found",
		slog.Int("count", len(items)),
		slog.Duration("overdue_after", e.policy.OverdueAfter),
	)

	var (
		failed int
		errs   []error
	)
	for _, irr := range items {
		ok, err := e.expire(ctx, irr.ID, deadline)
		if err != nil {
			e.logger.Error("failed to mark overdue irrigation as failed",
				slog.String("task_id", irr.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		if ok {
			failed++
		}
	}
	return failed, errors.Join(errs...)
}

func (e *Engine) expire(ctx context.Context, id string, deadline time.Time) (bool, error) {
	var out *domain.Irrigation
	err := e.withTask(ctx, id, func(irr *domain.Irrigation) error {
		// Re-check under the lock; the fine tick may have moved it meanwhile.
		if !irr.Status.IsDue() || irr.ScheduledAt.After(deadline) {
			return nil
		}
		if err := irr.Fire(domain.EventExpire); err != nil {
			return err
		}
		now := e.clock.Now()
		irr.FinishedAt = &now
		irr.UpdatedAt = now
		irr.StatusDescription = fmt.Sprintf("Overdue: not executed within %s of its scheduled time", formatHours(e.policy.OverdueAfter))
		saved, err := e.store.SaveIrrigation(ctx, irr)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved
		return nil
	})
	if err != nil || out == nil {
		return false, err
	}

	telemetry.IrrigationOverdueFailed.Inc()
	e.logger.Warn("irrigation failed as overdue",
		slog.String("task_id", out.ID),
		slog.Int("retry_count", out.RetryCount),
	)
	e.emit(ctx, notify.IrrigationFailed, out, out.StatusDescription)
	return true, nil
}

func formatHours(d time.Duration) string {
	h := int(d / time.Hour)
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}
