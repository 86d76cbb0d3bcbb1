package irrigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/internal/actuator"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// Execute runs one attempt of the irrigation: IN_PROGRESS, the hardware call,
// then COMPLETED, back to SCHEDULED for a retry, or FAILED. A failed hardware
// call is absorbed into the retry path and never returned; only NotFound,
// InvalidStateTransition and storage errors are.
func (e *Engine) Execute(ctx context.Context, id string) (*domain.Irrigation, error) {
	return e.execute(ctx, id, false)
}

// execute runs one attempt. With dueOnly set the attempt is skipped, returning
// nil, when the stored task is no longer due at the current time.
func (e *Engine) execute(ctx context.Context, id string, dueOnly bool) (*domain.Irrigation, error) {
	ctx, span := telemetry.Tracer("irrigation").Start(ctx, "irrigation.execute")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", id))

	started, err := e.begin(ctx, id, dueOnly)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution not started")
		return nil, err
	}
	if started == nil {
		span.SetAttributes(attribute.Bool("task.skipped", true))
		return nil, nil
	}

	log := e.logger.With(
		slog.String("task_id", id),
		slog.String("parcel_id", started.ParcelID),
		slog.Int("retry_count", started.RetryCount),
	)
	log.Info("irrigation started",
		slog.Int("duration_minutes", started.DurationMinutes),
		slog.Float64("water_liters", started.WaterAmountLiters),
	)

	outcome := e.activate(ctx, started)
	if outcome.Kind != domain.OutcomeSuccess {
		failure := &domain.ExecutionFailureError{TaskID: id, Err: errors.New(outcome.Reason)}
		span.RecordError(failure)
		log.Warn("irrigation attempt failed",
			slog.String("outcome", outcome.Kind.String()),
			slog.String("error", failure.Error()),
		)
	}

	// The result is persisted even if the caller went away meanwhile, so the
	// task never stays IN_PROGRESS because of a cancelled tick.
	out, err := e.finish(context.WithoutCancel(ctx), id, outcome, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution result not recorded")
		return nil, err
	}
	span.SetAttributes(attribute.String("task.status", string(out.Status)))
	return out, nil
}

// begin moves the task to IN_PROGRESS. With dueOnly set, a task that is no
// longer SCHEDULED or RETRYING, or whose scheduled time moved past now, is left
// alone and nil is returned.
func (e *Engine) begin(ctx context.Context, id string, dueOnly bool) (*domain.Irrigation, error) {
	var out *domain.Irrigation
	err := e.withTask(ctx, id, func(irr *domain.Irrigation) error {
		now := e.clock.Now()
		if dueOnly && !isDue(irr, now) {
			e.logger.Debug("irrigation no longer due, skipping",
				slog.String("task_id", id),
				slog.String("status", string(irr.Status)),
				slog.Time("scheduled_at", irr.ScheduledAt),
			)
			return nil
		}
		if err := irr.Fire(domain.EventStart); err != nil {
			return err
		}
		irr.StartedAt = &now
		irr.StatusDescription = domain.IrrigationInProgress.Description()
		irr.UpdatedAt = now
		saved, err := e.store.SaveIrrigation(ctx, irr)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved
		return nil
	})
	return out, err
}

func isDue(irr *domain.Irrigation, now time.Time) bool {
	return irr.Status.IsDue() && !irr.ScheduledAt.After(now)
}

// activate performs the bounded hardware call. No lock is held meanwhile so a
// manual stop can still reach the task.
func (e *Engine) activate(ctx context.Context, irr *domain.Irrigation) domain.Outcome {
	telemetry.IrrigationInFlight.Inc()
	defer telemetry.IrrigationInFlight.Dec()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := e.actuator.Start(callCtx, irr)
	telemetry.IrrigationActuatorSeconds.Observe(time.Since(start).Seconds())
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	return actuator.Classify(err)
}

// finish applies outcome to the task, provided nothing else moved it out of
// IN_PROGRESS while the hardware call was running.
func (e *Engine) finish(ctx context.Context, id string, outcome domain.Outcome, log *slog.Logger) (*domain.Irrigation, error) {
	var (
		out     *domain.Irrigation
		kind    notify.EventKind
		details string
	)
	err := e.withTask(ctx, id, func(irr *domain.Irrigation) error {
		if irr.Status != domain.IrrigationInProgress {
			log.Info("irrigation changed during execution, discarding result",
				slog.String("status", string(irr.Status)),
				slog.String("outcome", outcome.Kind.String()),
			)
			out = irr
			return nil
		}

		now := e.clock.Now()
		irr.UpdatedAt = now
		switch outcome.Kind {
		case domain.OutcomeSuccess:
			if err := irr.Fire(domain.EventComplete); err != nil {
				return err
			}
			irr.FinishedAt = &now
			irr.RetryCount = 0
			irr.StatusDescription = "Irrigation completed successfully"
			kind, details = notify.IrrigationCompleted, irr.StatusDescription

		case domain.OutcomeTransient:
			irr.RetryCount++
			irr.LastRetryAt = &now
			irr.StatusDescription = "Execution failed: " + outcome.Reason
			if e.policy.Exhausted(irr.RetryCount) {
				if err := irr.Fire(domain.EventFail); err != nil {
					return err
				}
				irr.FinishedAt = &now
				kind, details = notify.IrrigationFailed, "Maximum retry attempts exceeded. Last error: "+outcome.Reason
			} else {
				if err := irr.Fire(domain.EventReschedule); err != nil {
					return err
				}
				irr.ScheduledAt = e.policy.NextAttemptAt(now)
			}

		default:
			irr.RetryCount++
			irr.LastRetryAt = &now
			irr.StatusDescription = "Execution failed: " + outcome.Reason
			if err := irr.Fire(domain.EventFail); err != nil {
				return err
			}
			irr.FinishedAt = &now
			kind, details = notify.IrrigationFailed, "Controller rejected the command: "+outcome.Reason
		}

		saved, err := e.store.SaveIrrigation(ctx, irr)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved

		if out.Status == domain.IrrigationCompleted {
			if err := e.store.MarkIrrigated(ctx, out.ParcelID, *out.FinishedAt); err != nil {
				log.Error("failed to update parcel last irrigated time", slog.String("error", err.Error()))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case domain.IrrigationCompleted:
		telemetry.IrrigationExecutions.WithLabelValues("completed").Inc()
		log.Info("irrigation completed")
	case domain.IrrigationScheduled:
		telemetry.IrrigationExecutions.WithLabelValues("rescheduled").Inc()
		log.Info("irrigation rescheduled",
			slog.Int("retry_count", out.RetryCount),
			slog.Time("next_attempt", out.ScheduledAt),
		)
	case domain.IrrigationFailed:
		telemetry.IrrigationExecutions.WithLabelValues("failed").Inc()
		log.Error("irrigation failed",
			slog.Int("retry_count", out.RetryCount),
			slog.String("error", outcome.Reason),
		)
	}
	if kind != "" {
		e.emit(ctx, kind, out, details)
	}
	return out, nil
}

// Stop halts a running irrigation. Anything but IN_PROGRESS is rejected with
// no change. A failed hardware stop is returned and leaves the task running.
func (e *Engine) Stop(ctx context.Context, id string) (*domain.Irrigation, error) {
	ctx, span := telemetry.Tracer("irrigation").Start(ctx, "irrigation.stop")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", id))

	var out *domain.Irrigation
	err := e.withTask(ctx, id, func(irr *domain.Irrigation) error {
		if !irr.Can(domain.EventStop) {
			return &domain.InvalidStateTransitionError{
				Kind:  domain.KindIrrigation,
				ID:    id,
				From:  string(irr.Status),
				Event: domain.EventStop,
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		if err := e.actuator.Stop(callCtx, irr); err != nil {
			return fmt.Errorf("stop irrigation %s: %w", id, err)
		}

		if err := irr.Fire(domain.EventStop); err != nil {
			return err
		}
		now := e.clock.Now()
		irr.FinishedAt = &now
		irr.StatusDescription = "Manually stopped by user"
		irr.UpdatedAt = now
		saved, err := e.store.SaveIrrigation(ctx, irr)
		if err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
		out = saved
		if err := e.store.MarkIrrigated(ctx, out.ParcelID, now); err != nil {
			e.logger.Error("failed to update parcel last irrigated time",
				slog.String("task_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stop failed")
		return nil, err
	}

	e.logger.Info("irrigation stopped",
		slog.String("task_id", id),
		slog.String("parcel_id", out.ParcelID),
	)
	return out, nil
}
