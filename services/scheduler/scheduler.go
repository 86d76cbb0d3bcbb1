package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// Tick kinds, used as metric labels and in the manual trigger route.
const (
	TickFine   = "fine"
	TickCoarse = "coarse"
)

// ErrTickRunning is returned when a tick of the same kind is still in progress.
var ErrTickRunning = errors.New("tick already running")

// ErrUnknownTick is returned by Trigger for a kind other than fine or coarse.
var ErrUnknownTick = errors.New("unknown tick")

// Irrigations is the irrigation engine as seen by the fine and coarse ticks.
type Irrigations interface {
	FindDue(ctx context.Context, now time.Time) ([]*domain.Irrigation, error)
	Process(ctx context.Context, irr *domain.Irrigation) error
	SweepOverdue(ctx context.Context) (int, error)
}

// Fertilizations is the fertilization due scan.
type Fertilizations interface {
	ScanDue(ctx context.Context) (int, error)
}

// Generator creates the next task occurrences.
type Generator interface {
	ScheduleIrrigations(ctx context.Context) (int, error)
	ScheduleFertilizations(ctx context.Context) (int, error)
}

// Report summarises one tick.
type Report struct {
	Tick                    string        `json:"tick"`
	StartedAt               time.Time     `json:"started_at"`
	Took                    time.Duration `json:"took_ns"`
	Due                     int           `json:"due,omitempty"`
	Errors                  int           `json:"errors"`
	MarkedPending           int           `json:"marked_pending,omitempty"`
	OverdueFailed           int           `json:"overdue_failed,omitempty"`
	IrrigationsScheduled    int           `json:"irrigations_scheduled,omitempty"`
	FertilizationsScheduled int           `json:"fertilizations_scheduled,omitempty"`
}

// Scheduler drives the two periodic ticks. Each kind is single-flight: a
// firing that finds the previous tick of its kind still running is skipped.
type Scheduler struct {
	irrigation    Irrigations
	fertilization Fertilizations
	generator     Generator
	clock         clock.Clock
	fine          cron.Schedule
	coarse        cron.Schedule
	concurrency   int
	logger        *slog.Logger

	fineRunning   atomic.Bool
	coarseRunning atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for due selection and tick reports. Loop
// timing always follows the wall clock.
func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithConcurrency bounds how many due irrigations a fine tick processes at once.
func WithConcurrency(n int) Option { return func(s *Scheduler) { s.concurrency = n } }

// New builds a Scheduler. fineSpec and coarseSpec are standard cron
// expressions or descriptors such as "@every 1m" and "@hourly".
func New(irr Irrigations, fert Fertilizations, gen Generator, fineSpec, coarseSpec string, opts ...Option) (*Scheduler, error) {
	fine, err := cron.ParseStandard(fineSpec)
	if err != nil {
		return nil, fmt.Errorf("parse fine schedule %q: %w", fineSpec, err)
	}
	coarse, err := cron.ParseStandard(coarseSpec)
	if err != nil {
		return nil, fmt.Errorf("parse coarse schedule %q: %w", coarseSpec, err)
	}
	s := &Scheduler{
		irrigation:    irr,
		fertilization: fert,
		generator:     gen,
		clock:         clock.System{},
		fine:          fine,
		coarse:        coarse,
		concurrency:   4,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s, nil
}

// Run drives both ticks until ctx is cancelled. The coarse tick runs once
// immediately so a restart does not delay the overdue sweep and scheduling
// until its next firing.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, TickFine, s.fine, s.RunFine, false) })
	g.Go(func() error { return s.loop(ctx, TickCoarse, s.coarse, s.RunCoarse, true) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Trigger runs one tick of the given kind through the same single-flight guard
// as the timer loop.
func (s *Scheduler) Trigger(ctx context.Context, tick string) (Report, error) {
	switch tick {
	case TickFine:
		return s.RunFine(ctx)
	case TickCoarse:
		return s.RunCoarse(ctx)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownTick, tick)
	}
}

func (s *Scheduler) loop(ctx context.Context, tick string, schedule cron.Schedule, run func(context.Context) (Report, error), immediate bool) error {
	log := s.logger.With(slog.String("tick", tick))
	fire := func() {
		if _, err := run(ctx); errors.Is(err, ErrTickRunning) {
			telemetry.TicksSkipped.WithLabelValues(tick).Inc()
			log.Warn("previous tick still running, skipping")
		}
	}

	if immediate {
		fire()
	}
	next := schedule.Next(time.Now())
	log.Info("tick loop started", slog.Time("next_run", next))

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		fire()

		// Firings that fell inside a long tick are dropped, not queued.
		now := time.Now()
		next = schedule.Next(next)
		for !next.After(now) {
			telemetry.TicksSkipped.WithLabelValues(tick).Inc()
			log.Warn("tick overran its interval, skipping firing", slog.Time("missed", next))
			next = schedule.Next(next)
		}
	}
}

// RunFine selects every SCHEDULED or RETRYING irrigation due now and hands each
// to the irrigation engine, which applies the weather gate and executes. One
// task's failure never stops the others.
func (s *Scheduler) RunFine(ctx context.Context) (Report, error) {
	if !s.fineRunning.CompareAndSwap(false, true) {
		return Report{}, ErrTickRunning
	}
	defer s.fineRunning.Store(false)

	ctx, span := telemetry.Tracer("scheduler").Start(ctx, "scheduler.fine_tick")
	defer span.End()

	rep := Report{Tick: TickFine, StartedAt: s.clock.Now()}
	start := time.Now()
	defer func() { telemetry.TickDuration.WithLabelValues(TickFine).Observe(time.Since(start).Seconds()) }()

	due, err := s.irrigation.FindDue(ctx, rep.StartedAt)
	if err != nil {
		s.taskError(TickFine, "", err)
		rep.Errors++
		rep.Took = time.Since(start)
		return rep, nil
	}
	rep.Due = len(due)
	if len(due) == 0 {
		s.logger.Debug("no irrigations due")
		rep.Took = time.Since(start)
		return rep, nil
	}
	s.logger.Info("irrigations due", slog.Int("count", len(due)))

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, irr := range due {
		g.Go(func() error {
			if err := safely(func() error { return s.irrigation.Process(ctx, irr) }); err != nil {
				failed.Add(1)
				s.taskError(TickFine, irr.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Errors = int(failed.Load())
	rep.Took = time.Since(start)
	return rep, nil
}

// RunCoarse marks due fertilizations PENDING, fails overdue irrigations and
// generates new occurrences of both kinds. Each step runs even if an earlier
// one failed.
func (s *Scheduler) RunCoarse(ctx context.Context) (Report, error) {
	if !s.coarseRunning.CompareAndSwap(false, true) {
		return Report{}, ErrTickRunning
	}
	defer s.coarseRunning.Store(false)

	ctx, span := telemetry.Tracer("scheduler").Start(ctx, "scheduler.coarse_tick")
	defer span.End()

	rep := Report{Tick: TickCoarse, StartedAt: s.clock.Now()}
	start := time.Now()
	defer func() { telemetry.TickDuration.WithLabelValues(TickCoarse).Observe(time.Since(start).Seconds()) }()

	steps := []struct {
		name string
		run  func(context.Context) (int, error)
		out  *int
	}{
		{"fertilization due scan", s.fertilization.ScanDue, &rep.MarkedPending},
		{"overdue sweep", s.irrigation.SweepOverdue, &rep.OverdueFailed},
		{"irrigation auto-schedule", s.generator.ScheduleIrrigations, &rep.IrrigationsScheduled},
		{"fertilization auto-schedule", s.generator.ScheduleFertilizations, &rep.FertilizationsScheduled},
	}
	for _, step := range steps {
		var n int
		err := safely(func() error {
			var err error
			n, err = step.run(ctx)
			return err
		})
		*step.out = n
		if err != nil {
			rep.Errors++
			s.logger.Error("coarse tick step failed",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			telemetry.TaskErrors.WithLabelValues(TickCoarse).Inc()
		}
	}

	rep.Took = time.Since(start)
	s.logger.Info("coarse tick finished",
		slog.Int("marked_pending", rep.MarkedPending),
		slog.Int("overdue_failed", rep.OverdueFailed),
		slog.Int("irrigations_scheduled", rep.IrrigationsScheduled),
		slog.Int("fertilizations_scheduled", rep.FertilizationsScheduled),
		slog.Int("errors", rep.Errors),
	)
	return rep, nil
}

func (s *Scheduler) taskError(tick, taskID string, err error) {
	telemetry.TaskErrors.WithLabelValues(tick).Inc()
	s.logger.Error("tick task failed",
		slog.String("tick", tick),
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
	)
}

// safely turns a panic in fn into an error so one task cannot take the tick down.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
