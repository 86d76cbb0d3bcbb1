// Package autoschedule creates the next irrigation and fertilization
// occurrences from each parcel's crop cadence and history.
package autoschedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

const (
	DefaultDurationMinutes = 30
	DefaultWaterLiters     = 100.0
	// ImmediateDelay is the lead time given to a task that is already due.
	ImmediateDelay = 5 * time.Minute
)

const day = 24 * time.Hour

// Store is the persistence the generator reads and writes.
type Store interface {
	store.ParcelStore
	store.IrrigationStore
	store.FertilizationStore
}

// Generator decides whether a parcel needs a new task and creates it.
type Generator struct {
	store  Store
	clock  clock.Clock
	ahead  time.Duration
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

func WithClock(c clock.Clock) Option   { return func(g *Generator) { g.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithLookahead treats a parcel as due once its next action falls within d of
// now. Tasks created ahead keep their exact due time.
func WithLookahead(d time.Duration) Option { return func(g *Generator) { g.ahead = d } }

// NewGenerator constructs a Generator.
func NewGenerator(st Store, opts ...Option) *Generator {
	g := &Generator{
		store:  st,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ScheduleIrrigations walks every parcel and creates an irrigation where one is
// needed. Per-parcel errors are logged and joined; the walk always completes.
func (g *Generator) ScheduleIrrigations(ctx context.Context) (int, error) {
	return g.each(ctx, domain.KindIrrigation, g.irrigationFor)
}

// ScheduleFertilizations walks every parcel and creates a fertilization where
// one is needed.
func (g *Generator) ScheduleFertilizations(ctx context.Context) (int, error) {
	return g.each(ctx, domain.KindFertilization, g.fertilizationFor)
}

func (g *Generator) each(ctx context.Context, kind string, fn func(context.Context, *domain.Parcel, time.Time) (bool, error)) (int, error) {
	parcels, err := g.store.ListParcels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list parcels: %w", err)
	}

	now := g.clock.Now()
	var (
		created int
		errs    []error
	)
	for _, p := range parcels {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		ok, err := fn(ctx, p, now)
		if err != nil {
			g.logger.Error("auto-schedule failed for parcel",
				slog.String("kind", kind),
				slog.String("parcel_id", p.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("parcel %s: %w", p.ID, err))
			continue
		}
		if ok {
			created++
			telemetry.AutoScheduled.WithLabelValues(kind).Inc()
		}
	}

	if created > 0 {
		g.logger.Info("auto-scheduled tasks", slog.String("kind", kind), slog.Int("count", created))
	} else {
		g.logger.Debug("no tasks needed", slog.String("kind", kind))
	}
	return created, errors.Join(errs...)
}

func (g *Generator) crop(ctx context.Context, p *domain.Parcel) (*domain.Crop, error) {
	if !p.HasCrop() {
		return nil, nil
	}
	c, err := g.store.GetCrop(ctx, p.CropID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (g *Generator) irrigationFor(ctx context.Context, p *domain.Parcel, now time.Time) (bool, error) {
	c, err := g.crop(ctx, p)
	if err != nil || c == nil || c.IrrigationFrequencyDays == nil || *c.IrrigationFrequencyDays <= 0 {
		return false, err
	}
	freqDays := *c.IrrigationFrequencyDays

	nextDue := now
	if p.LastIrrigatedAt != nil {
		nextDue = p.LastIrrigatedAt.AddDate(0, 0, freqDays)
	}
	if nextDue.After(now.Add(g.ahead)) {
		return false, nil
	}

	existing, err := g.store.ListIrrigations(ctx, p.ID,
		domain.IrrigationScheduled, domain.IrrigationRetrying, domain.IrrigationInProgress)
	if err != nil {
		return false, fmt.Errorf("list irrigations: %w", err)
	}
	if len(existing) > 0 {
		soonest := existing[0].ScheduledAt
		for _, irr := range existing[1:] {
			if irr.ScheduledAt.Before(soonest) {
				soonest = irr.ScheduledAt
			}
		}
		anchor := nextDue
		if now.After(anchor) {
			anchor = now
		}
		grace := anchor.Add(time.Duration(freqDays) * day / 2)
		if soonest.Before(grace) {
			g.logger.Debug("parcel already has a relevant irrigation",
				slog.String("parcel_id", p.ID),
				slog.Time("soonest", soonest),
			)
			return false, nil
		}
		g.logger.Info("existing irrigation is too far out, scheduling another",
			slog.String("parcel_id", p.ID),
			slog.Time("soonest", soonest),
			slog.Time("needed_by", nextDue),
		)
	}

	scheduledAt := nextDue
	if p.LastIrrigatedAt == nil || !nextDue.After(now) {
		scheduledAt = now.Add(ImmediateDelay)
	}

	irr := &domain.Irrigation{
		ParcelID:          p.ID,
		ScheduledAt:       scheduledAt,
		DurationMinutes:   DurationFor(c),
		WaterAmountLiters: WaterFor(p, c),
		Status:            domain.IrrigationScheduled,
		StatusDescription: domain.IrrigationScheduled.Description(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	saved, err := g.store.SaveIrrigation(ctx, irr)
	if err != nil {
		return false, fmt.Errorf("save irrigation: %w", err)
	}
	g.logger.Info("irrigation scheduled",
		slog.String("task_id", saved.ID),
		slog.String("parcel_id", p.ID),
		slog.String("parcel", p.Name),
		slog.Time("scheduled_at", saved.ScheduledAt),
		slog.Int("duration_minutes", saved.DurationMinutes),
		slog.Float64("water_liters", saved.WaterAmountLiters),
	)
	return true, nil
}

// DurationFor is the crop's irrigation duration, or the default when unset.
func DurationFor(c *domain.Crop) int {
	if c.IrrigationDurationMinutes == nil || *c.IrrigationDurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return *c.IrrigationDurationMinutes
}

// WaterFor is area times the crop's per-square-metre requirement, or the
// default when either is missing.
func WaterFor(p *domain.Parcel, c *domain.Crop) float64 {
	if c.WaterRequirementLitersPerSqm == nil || *c.WaterRequirementLitersPerSqm <= 0 || p.AreaSqm == nil || *p.AreaSqm <= 0 {
		return DefaultWaterLiters
	}
	return *p.AreaSqm * *c.WaterRequirementLitersPerSqm
}

func fertilizationConfigured(c *domain.Crop) bool {
	return c != nil && c.FertilizationFrequencyDays != nil && *c.FertilizationFrequencyDays > 0 && c.FertilizerType != ""
}

func (g *Generator) fertilizationFor(ctx context.Context, p *domain.Parcel, now time.Time) (bool, error) {
	c, err := g.crop(ctx, p)
	if err != nil || !fertilizationConfigured(c) {
		return false, err
	}

	nextDue := now
	if p.LastFertilizedAt != nil {
		nextDue = p.LastFertilizedAt.AddDate(0, 0, *c.FertilizationFrequencyDays)
	}
	if nextDue.After(now.Add(g.ahead)) {
		return false, nil
	}

	f, err := g.createFertilization(ctx, p, c, nextDue, now)
	return f != nil, err
}

// ChainFertilization creates the occurrence following a fertilization
// completed at completedAt. It returns nil when the crop has no fertilization
// cadence or the parcel already has an open fertilization.
func (g *Generator) ChainFertilization(ctx context.Context, parcelID string, completedAt time.Time) (*domain.Fertilization, error) {
	p, err := g.store.GetParcel(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	c, err := g.crop(ctx, p)
	if err != nil {
		return nil, err
	}
	if !fertilizationConfigured(c) {
		g.logger.Debug("parcel has no fertilization cadence, not chaining", slog.String("parcel_id", parcelID))
		return nil, nil
	}
	next := completedAt.AddDate(0, 0, *c.FertilizationFrequencyDays)
	f, err := g.createFertilization(ctx, p, c, next, g.clock.Now())
	if err == nil && f != nil {
		telemetry.AutoScheduled.WithLabelValues(domain.KindFertilization).Inc()
	}
	return f, err
}

func (g *Generator) createFertilization(ctx context.Context, p *domain.Parcel, c *domain.Crop, at, now time.Time) (*domain.Fertilization, error) {
	open, err := g.store.ListFertilizations(ctx, p.ID, domain.FertilizationScheduled, domain.FertilizationPending)
	if err != nil {
		return nil, fmt.Errorf("list fertilizations: %w", err)
	}
	if len(open) > 0 {
		g.logger.Debug("parcel already has an open fertilization", slog.String("parcel_id", p.ID))
		return nil, nil
	}

	saved, err := g.store.SaveFertilization(ctx, &domain.Fertilization{
		ParcelID:       p.ID,
		ScheduledAt:    at,
		FertilizerType: c.FertilizerType,
		Status:         domain.FertilizationScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("save fertilization: %w", err)
	}
	g.logger.Info("fertilization scheduled",
		slog.String("task_id", saved.ID),
		slog.String("parcel_id", p.ID),
		slog.String("parcel", p.Name),
		slog.Time("scheduled_at", saved.ScheduledAt),
		slog.String("fertilizer", saved.FertilizerType),
	)
	return saved, nil
}
