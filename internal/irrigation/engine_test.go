package irrigation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/actuator"
	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/internal/weather"
	"github.com/petrovskifilip/agri-management-system/pkg/retry"
)

// ── mocks ────────────────────────────────────────────────────────────────────

// scriptedActuator returns the scripted errors in order; past the end it succeeds.
type scriptedActuator struct {
	mu      sync.Mutex
	results []error
	starts  int
	stops   int
	stopErr error
}

func (a *scriptedActuator) Start(context.Context, *domain.Irrigation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.starts < len(a.results) {
		err = a.results[a.starts]
	}
	a.starts++
	return err
}

func (a *scriptedActuator) Stop(context.Context, *domain.Irrigation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return a.stopErr
}

var _ actuator.Actuator = (*scriptedActuator)(nil)

type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) kinds() []notify.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixedGate struct {
	decision weather.Decision
	calls    int
}

func (g *fixedGate) CheckRain(context.Context, float64, float64) weather.Decision {
	g.calls++
	return g.decision
}

// ── helpers ───────────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

type fixture struct {
	store    *store.Memory
	clock    *clock.Fake
	actuator *scriptedActuator
	events   *recordingEmitter
	gate     *fixedGate
	engine   *Engine
}

func newFixture(t *testing.T, results ...error) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		clock:    clock.NewFake(t0),
		actuator: &scriptedActuator{results: results},
		events:   &recordingEmitter{},
		gate:     &fixedGate{decision: weather.Proceed("clear")},
	}
	f.engine = NewEngine(f.store, f.actuator,
		WithClock(f.clock),
		WithPolicy(retry.NewPolicy(3, 15, 24)),
		WithNotifier(f.events),
		WithGate(f.gate),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func (f *fixture) parcel(t *testing.T, withCoords bool) *domain.Parcel {
	t.Helper()
	area := 50.0
	p := &domain.Parcel{ID: "parcel-1", Name: "North field", FarmID: "farm-1", AreaSqm: &area}
	if withCoords {
		lat, lon := 41.99, 21.43
		p.Latitude, p.Longitude = &lat, &lon
	}
	saved, err := f.store.SaveParcel(context.Background(), p)
	require.NoError(t, err)
	return saved
}

func (f *fixture) task(t *testing.T, status domain.IrrigationStatus, at time.Time) *domain.Irrigation {
	t.Helper()
	irr, err := f.store.SaveIrrigation(context.Background(), &domain.Irrigation{
		ParcelID:          "parcel-1",
		ScheduledAt:       at,
		DurationMinutes:   30,
		WaterAmountLiters: 100,
		Status:            status,
		CreatedAt:         at,
		UpdatedAt:         at,
	})
	require.NoError(t, err)
	return irr
}

func (f *fixture) reload(t *testing.T, id string) *domain.Irrigation {
	t.Helper()
	irr, err := f.store.GetIrrigation(context.Background(), id)
	require.NoError(t, err)
	return irr
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestExecute_Success(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationScheduled, t0)

	out, err := f.engine.Execute(context.Background(), irr.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.IrrigationCompleted, out.Status)
	assert.Equal(t, 0, out.RetryCount)
	require.NotNil(t, out.StartedAt)
	require.NotNil(t, out.FinishedAt)
	assert.Equal(t, "Irrigation completed successfully", out.StatusDescription)

	p, err := f.store.GetParcel(context.Background(), "parcel-1")
	require.NoError(t, err)
	require.NotNil(t, p.LastIrrigatedAt)
	assert.True(t, p.LastIrrigatedAt.Equal(*out.FinishedAt))
	assert.Equal(t, []notify.EventKind{notify.IrrigationCompleted}, f.events.kinds())
}

func TestExecute_FailsTwiceThenSucceeds(t *testing.T) {
	boom := errors.New("valve timeout")
	f := newFixture(t, boom, boom)
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationScheduled, t0)
	ctx := context.Background()

	out, err := f.engine.Execute(ctx, irr.ID)
	require.NoError(t, err, "execution failures are absorbed")
	assert.Equal(t, domain.IrrigationScheduled, out.Status)
	assert.Equal(t, 1, out.RetryCount)
	assert.Equal(t, t0.Add(15*time.Minute), out.ScheduledAt)
	assert.Nil(t, out.FinishedAt)
	require.NotNil(t, out.LastRetryAt)
	assert.Equal(t, "Execution failed: valve timeout", out.StatusDescription)

	f.clock.Advance(15 * time.Minute)
	out, err = f.engine.Execute(ctx, irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationScheduled, out.Status)
	assert.Equal(t, 2, out.RetryCount)

	third := f.clock.Advance(15 * time.Minute)
	out, err = f.engine.Execute(ctx, irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationCompleted, out.Status)
	assert.Equal(t, 0, out.RetryCount)
	assert.Equal(t, third, *out.FinishedAt)

	p, err := f.store.GetParcel(ctx, "parcel-1")
	require.NoError(t, err)
	assert.Equal(t, third, *p.LastIrrigatedAt)
	assert.Equal(t, 3, f.actuator.starts)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	boom := errors.New("pump offline")
	f := newFixture(t, boom, boom, boom)
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationScheduled, t0)
	ctx := context.Background()

	var out *domain.Irrigation
	for i := 0; i < 3; i++ {
		var err error
		out, err = f.engine.Execute(ctx, irr.ID)
		require.NoError(t, err)
		if out.Status.IsDue() {
			assert.Less(t, out.RetryCount, f.engine.Policy().MaxAttempts)
		}
		f.clock.Advance(15 * time.Minute)
	}

	assert.Equal(t, domain.IrrigationFailed, out.Status)
	assert.Equal(t, 3, out.RetryCount)
	require.NotNil(t, out.FinishedAt)

	due, err := f.engine.FindDue(ctx, f.clock.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "a failed task is never selected again")

	_, err = f.engine.Execute(ctx, irr.ID)
	var invalid *domain.InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 3, f.actuator.starts)

	kinds := f.events.kinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, notify.IrrigationFailed, kinds[0])
	assert.Contains(t, f.events.events[0].Details, "pump offline")

	p, err := f.store.GetParcel(ctx, "parcel-1")
	require.NoError(t, err)
	assert.Nil(t, p.LastIrrigatedAt)
}

func TestExecute_RejectedCommandFailsImmediately(t *testing.T) {
	f := newFixture(t, &actuator.RejectedError{StatusCode: 400, Message: "unknown valve"})
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationScheduled, t0)

	out, err := f.engine.Execute(context.Background(), irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationFailed, out.Status)
	assert.Equal(t, 1, out.RetryCount)
	assert.Equal(t, 1, f.actuator.starts)
}

func TestExecute_TimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	f.engine.actuator = actuator.Func{StartFn: func(ctx context.Context, _ *domain.Irrigation) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	f.engine.timeout = 10 * time.Millisecond
	irr := f.task(t, domain.IrrigationScheduled, t0)

	out, err := f.engine.Execute(context.Background(), irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationScheduled, out.Status)
	assert.Equal(t, 1, out.RetryCount)
}

func TestExecute_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Execute(context.Background(), "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 0, f.actuator.starts)
}

func TestExecute_StoppedDuringCallKeepsStopped(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationScheduled, t0)
	f.engine.actuator = actuator.Func{StartFn: func(ctx context.Context, cur *domain.Irrigation) error {
		_, err := f.engine.Stop(ctx, cur.ID)
		return err
	}}

	out, err := f.engine.Execute(context.Background(), irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationStopped, out.Status)
	assert.Empty(t, f.events.kinds(), "the discarded result emits nothing")
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	irr := f.task(t, domain.IrrigationInProgress, t0)
	ctx := context.Background()

	out, err := f.engine.Stop(ctx, irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationStopped, out.Status)
	assert.Equal(t, "Manually stopped by user", out.StatusDescription)
	assert.Equal(t, t0, *out.FinishedAt)
	assert.Equal(t, 1, f.actuator.stops)

	p, err := f.store.GetParcel(ctx, "parcel-1")
	require.NoError(t, err)
	assert.Equal(t, t0, *p.LastIrrigatedAt)

	before := f.reload(t, irr.ID)
	f.clock.Advance(time.Minute)
	_, err = f.engine.Stop(ctx, irr.ID)
	var invalid *domain.InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(domain.IrrigationStopped), invalid.From)
	assert.Equal(t, before, f.reload(t, irr.ID), "a rejected stop leaves the record unchanged")
	assert.Equal(t, 1, f.actuator.stops)
}

func TestStop_RejectsNonRunning(t *testing.T) {
	for _, status := range []domain.IrrigationStatus{
		domain.IrrigationScheduled,
		domain.IrrigationRetrying,
		domain.IrrigationCompleted,
		domain.IrrigationFailed,
		domain.IrrigationCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.parcel(t, false)
			irr := f.task(t, status, t0)

			_, err := f.engine.Stop(context.Background(), irr.ID)
			var invalid *domain.InvalidStateTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, status, f.reload(t, irr.ID).Status)
			assert.Equal(t, 0, f.actuator.stops)
		})
	}
}

func TestStop_HardwareErrorKeepsRunning(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	f.actuator.stopErr = errors.New("controller unreachable")
	irr := f.task(t, domain.IrrigationInProgress, t0)

	_, err := f.engine.Stop(context.Background(), irr.ID)
	require.Error(t, err)
	assert.Equal(t, domain.IrrigationInProgress, f.reload(t, irr.ID).Status)
}

func TestProcess_PostponesWhenRaining(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, true)
	f.gate.decision = weather.Decision{IsRainingNow: true, Recommendation: weather.RecommendSkip, Details: "Currently raining"}
	irr := f.task(t, domain.IrrigationScheduled, t0)

	require.NoError(t, f.engine.Process(context.Background(), irr))

	got := f.reload(t, irr.ID)
	assert.Equal(t, domain.IrrigationScheduled, got.Status)
	assert.Equal(t, t0.Add(2*time.Hour), got.ScheduledAt)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, "Postponed by 2 hours - currently raining", got.StatusDescription)
	assert.Equal(t, 0, f.actuator.starts, "no execution while raining")
	assert.Equal(t, []notify.EventKind{notify.IrrigationPostponed}, f.events.kinds())
}

func TestProcess_RainExpectedKeepsRetrying(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, true)
	f.gate.decision = weather.Decision{RainWithinHour: true, RainNextHourMM: 2.1}
	irr := f.task(t, domain.IrrigationRetrying, t0)

	require.NoError(t, f.engine.Process(context.Background(), irr))

	got := f.reload(t, irr.ID)
	assert.Equal(t, domain.IrrigationRetrying, got.Status)
	assert.Equal(t, "Postponed by 2 hours - rain expected in next hour", got.StatusDescription)
}

func TestProcess_NoCoordinatesSkipsGate(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	f.gate.decision = weather.Decision{IsRainingNow: true}
	irr := f.task(t, domain.IrrigationScheduled, t0)

	require.NoError(t, f.engine.Process(context.Background(), irr))
	assert.Equal(t, 0, f.gate.calls)
	assert.Equal(t, domain.IrrigationCompleted, f.reload(t, irr.ID).Status)
}

func TestProcess_DryWeatherExecutes(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, true)
	irr := f.task(t, domain.IrrigationScheduled, t0)

	require.NoError(t, f.engine.Process(context.Background(), irr))
	assert.Equal(t, 1, f.gate.calls)
	assert.Equal(t, domain.IrrigationCompleted, f.reload(t, irr.ID).Status)
}

func TestProcess_HonoursRetryDelaySetMeanwhile(t *testing.T) {
	f := newFixture(t, errors.New("pump offline"))
	f.parcel(t, true)
	ctx := context.Background()
	irr := f.task(t, domain.IrrigationScheduled, t0)

	due, err := f.engine.FindDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// A manual attempt fails after the tick selected the task.
	out, err := f.engine.Execute(ctx, irr.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), out.ScheduledAt)

	require.NoError(t, f.engine.Process(ctx, due[0]))
	assert.Equal(t, 1, f.actuator.starts, "retry delay not yet elapsed")
	got := f.reload(t, irr.ID)
	assert.Equal(t, domain.IrrigationScheduled, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, t0.Add(15*time.Minute), got.ScheduledAt)

	f.clock.Advance(15 * time.Minute)
	require.NoError(t, f.engine.Process(ctx, due[0]))
	assert.Equal(t, 2, f.actuator.starts)
	assert.Equal(t, domain.IrrigationCompleted, f.reload(t, irr.ID).Status)
}

func TestProcess_SkipsTaskNoLongerDue(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	ctx := context.Background()
	irr := f.task(t, domain.IrrigationScheduled, t0)

	_, err := f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationCancelled)
	require.NoError(t, err)

	require.NoError(t, f.engine.Process(ctx, irr))
	assert.Equal(t, 0, f.actuator.starts)
	assert.Equal(t, domain.IrrigationCancelled, f.reload(t, irr.ID).Status)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	stale := f.task(t, domain.IrrigationScheduled, t0.Add(-30*time.Hour))
	staleRetrying := f.task(t, domain.IrrigationRetrying, t0.Add(-25*time.Hour))
	recent := f.task(t, domain.IrrigationScheduled, t0.Add(-2*time.Hour))
	done := f.task(t, domain.IrrigationCompleted, t0.Add(-40*time.Hour))

	n, err := f.engine.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.reload(t, stale.ID)
	assert.Equal(t, domain.IrrigationFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, t0, *got.FinishedAt)
	assert.Contains(t, got.StatusDescription, "24 hours")

	assert.Equal(t, domain.IrrigationFailed, f.reload(t, staleRetrying.ID).Status)
	assert.Equal(t, domain.IrrigationScheduled, f.reload(t, recent.ID).Status)
	assert.Equal(t, domain.IrrigationCompleted, f.reload(t, done.ID).Status)
	assert.Equal(t, []notify.EventKind{notify.IrrigationFailed, notify.IrrigationFailed}, f.events.kinds())
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel scheduled", func(t *testing.T) {
		f := newFixture(t)
		f.parcel(t, false)
		irr := f.task(t, domain.IrrigationScheduled, t0)

		out, err := f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationCancelled)
		require.NoError(t, err)
		assert.Equal(t, domain.IrrigationCancelled, out.Status)
		assert.Equal(t, domain.IrrigationCancelled.Description(), out.StatusDescription)
		assert.NotNil(t, out.FinishedAt)
	})

	t.Run("hold and resume", func(t *testing.T) {
		f := newFixture(t)
		f.parcel(t, false)
		irr := f.task(t, domain.IrrigationScheduled, t0)

		out, err := f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationRetrying)
		require.NoError(t, err)
		assert.Equal(t, domain.IrrigationRetrying, out.Status)
		assert.Nil(t, out.FinishedAt)

		out, err = f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationScheduled)
		require.NoError(t, err)
		assert.Equal(t, domain.IrrigationScheduled, out.Status)
	})

	t.Run("terminal is final", func(t *testing.T) {
		f := newFixture(t)
		f.parcel(t, false)
		irr := f.task(t, domain.IrrigationCompleted, t0)

		_, err := f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationScheduled)
		var invalid *domain.InvalidStateTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, domain.IrrigationCompleted, f.reload(t, irr.ID).Status)
	})

	t.Run("in progress reserved for execute", func(t *testing.T) {
		f := newFixture(t)
		f.parcel(t, false)
		irr := f.task(t, domain.IrrigationScheduled, t0)

		_, err := f.engine.UpdateStatus(ctx, irr.ID, domain.IrrigationInProgress)
		var invalid *domain.InvalidStateTransitionError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("running task is left to execute and stop", func(t *testing.T) {
		for _, to := range []domain.IrrigationStatus{
			domain.IrrigationStopped,
			domain.IrrigationCompleted,
			domain.IrrigationScheduled,
			domain.IrrigationFailed,
			domain.IrrigationCancelled,
		} {
			t.Run(string(to), func(t *testing.T) {
				f := newFixture(t)
				f.parcel(t, false)
				irr := f.task(t, domain.IrrigationInProgress, t0)
				irr.RetryCount = 2
				_, err := f.store.SaveIrrigation(ctx, irr)
				require.NoError(t, err)

				_, err = f.engine.UpdateStatus(ctx, irr.ID, to)
				var invalid *domain.InvalidStateTransitionError
				require.ErrorAs(t, err, &invalid)

				got := f.reload(t, irr.ID)
				assert.Equal(t, domain.IrrigationInProgress, got.Status)
				assert.Equal(t, 2, got.RetryCount)
				assert.Equal(t, 0, f.actuator.stops)

				p, err := f.store.GetParcel(ctx, "parcel-1")
				require.NoError(t, err)
				assert.Nil(t, p.LastIrrigatedAt)
			})
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.UpdateStatus(ctx, "x", domain.IrrigationStatus("FLOODED"))
		require.Error(t, err)
	})
}

func TestListByParcel_PriorityOrder(t *testing.T) {
	f := newFixture(t)
	f.parcel(t, false)
	completed := f.task(t, domain.IrrigationCompleted, t0.Add(-time.Hour))
	scheduled := f.task(t, domain.IrrigationScheduled, t0.Add(time.Hour))
	running := f.task(t, domain.IrrigationInProgress, t0)

	items, err := f.engine.ListByParcel(context.Background(), "parcel-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, running.ID, items[0].ID)
	assert.Equal(t, scheduled.ID, items[1].ID)
	assert.Equal(t, completed.ID, items[2].ID)

	_, err = f.engine.ListByParcel(context.Background(), "nope")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
