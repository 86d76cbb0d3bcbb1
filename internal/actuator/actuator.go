// Package actuator drives the irrigation hardware. The engine treats it as an
// opaque call that can fail; how a controller is reached is up to the
// implementation.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

// Actuator starts and stops watering for one irrigation.
type Actuator interface {
	Start(ctx context.Context, irr *domain.Irrigation) error
	Stop(ctx context.Context, irr *domain.Irrigation) error
}

// RejectedError means the controller refused the command; repeating it will
// not help.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("controller rejected command (status %d): %s", e.StatusCode, e.Message)
}

// Classify maps the result of Start onto an execution outcome.
func Classify(err error) domain.Outcome {
	if err == nil {
		return domain.Success()
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return domain.FatalFailure(err.Error())
	}
	return domain.TransientFailure(err.Error())
}

// Simulated logs commands and always succeeds; it stands in for hardware in
// development setups.
type Simulated struct {
	Logger *slog.Logger
}

var _ Actuator = Simulated{}

func (s Simulated) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Simulated) Start(_ context.Context, irr *domain.Irrigation) error {
	s.logger().Info("simulated pump start",
		slog.String("task_id", irr.ID),
		slog.String("parcel_id", irr.ParcelID),
		slog.Int("duration_minutes", irr.DurationMinutes),
		slog.Float64("water_amount_liters", irr.WaterAmountLiters),
	)
	return nil
}

func (s Simulated) Stop(_ context.Context, irr *domain.Irrigation) error {
	s.logger().Info("simulated pump stop", slog.String("task_id", irr.ID))
	return nil
}

// Func adapts plain functions to Actuator. A nil function succeeds.
type Func struct {
	StartFn func(ctx context.Context, irr *domain.Irrigation) error
	StopFn  func(ctx context.Context, irr *domain.Irrigation) error
}

func (f Func) Start(ctx context.Context, irr *domain.Irrigation) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx, irr)
}

func (f Func) Stop(ctx context.Context, irr *domain.Irrigation) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx, irr)
}
