package autoschedule_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/autoschedule"
	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
)

var now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func timep(v time.Time) *time.Time {
	return &v
}

func setup(t *testing.T, crop *domain.Crop, parcel *domain.Parcel, opts ...autoschedule.Option) (*store.Memory, *autoschedule.Generator) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	if crop != nil {
		crop.ID = "crop-1"
		_, err := st.SaveCrop(ctx, crop)
		require.NoError(t, err)
		parcel.CropID = crop.ID
	}
	parcel.ID = "parcel-1"
	parcel.Name = "South field"
	_, err := st.SaveParcel(ctx, parcel)
	require.NoError(t, err)

	opts = append([]autoschedule.Option{
		autoschedule.WithClock(clock.NewFake(now)),
		autoschedule.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return st, autoschedule.NewGenerator(st, opts...)
}

func irrigations(t *testing.T, st *store.Memory) []*domain.Irrigation {
	t.Helper()
	items, err := st.ListIrrigations(context.Background(), "parcel-1")
	require.NoError(t, err)
	return items
}

func TestScheduleIrrigations_NeverIrrigatedUsesDefaults(t *testing.T) {
	st, g := setup(t,
		&domain.Crop{Name: "Tomato", IrrigationFrequencyDays: intp(7), WaterRequirementLitersPerSqm: floatp(2.0)},
		&domain.Parcel{AreaSqm: floatp(50)},
	)

	n, err := g.ScheduleIrrigations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items := irrigations(t, st)
	require.Len(t, items, 1)
	irr := items[0]
	assert.Equal(t, now.Add(5*time.Minute), irr.ScheduledAt)
	assert.Equal(t, 30, irr.DurationMinutes)
	assert.InDelta(t, 100.0, irr.WaterAmountLiters, 1e-9)
	assert.Equal(t, domain.IrrigationScheduled, irr.Status)
	assert.Equal(t, 0, irr.RetryCount)
	assert.NotEmpty(t, irr.ID)
}

func TestScheduleIrrigations_ComputedWaterAndDuration(t *testing.T) {
	st, g := setup(t,
		&domain.Crop{IrrigationFrequencyDays: intp(3), IrrigationDurationMinutes: intp(45), WaterRequirementLitersPerSqm: floatp(1.5)},
		&domain.Parcel{AreaSqm: floatp(200), LastIrrigatedAt: timep(now.AddDate(0, 0, -5))},
	)

	_, err := g.ScheduleIrrigations(context.Background())
	require.NoError(t, err)

	items := irrigations(t, st)
	require.Len(t, items, 1)
	assert.Equal(t, now.Add(5*time.Minute), items[0].ScheduledAt, "overdue parcels are scheduled right away")
	assert.Equal(t, 45, items[0].DurationMinutes)
	assert.InDelta(t, 300.0, items[0].WaterAmountLiters, 1e-9)
}

func TestScheduleIrrigations_DefaultWaterWithoutArea(t *testing.T) {
	assert.Equal(t, 100.0, autoschedule.WaterFor(&domain.Parcel{}, &domain.Crop{WaterRequirementLitersPerSqm: floatp(3)}))
	assert.Equal(t, 100.0, autoschedule.WaterFor(&domain.Parcel{AreaSqm: floatp(10)}, &domain.Crop{}))
	assert.Equal(t, 30, autoschedule.DurationFor(&domain.Crop{IrrigationDurationMinutes: intp(0)}))
}

func TestScheduleIrrigations_Skips(t *testing.T) {
	cases := map[string]struct {
		crop   *domain.Crop
		parcel *domain.Parcel
	}{
		"no crop":        {nil, &domain.Parcel{}},
		"no frequency":   {&domain.Crop{}, &domain.Parcel{}},
		"zero frequency": {&domain.Crop{IrrigationFrequencyDays: intp(0)}, &domain.Parcel{}},
		"not yet due":    {&domain.Crop{IrrigationFrequencyDays: intp(7)}, &domain.Parcel{LastIrrigatedAt: timep(now.AddDate(0, 0, -2))}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			st, g := setup(t, tc.crop, tc.parcel)
			n, err := g.ScheduleIrrigations(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, irrigations(t, st))
		})
	}
}

func TestScheduleIrrigations_ExistingWithinGraceWindow(t *testing.T) {
	st, g := setup(t,
		&domain.Crop{IrrigationFrequencyDays: intp(4)},
		&domain.Parcel{},
	)
	ctx := context.Background()

	n, err := g.ScheduleIrrigations(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = g.ScheduleIrrigations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a second run must not duplicate the pending task")
	assert.Len(t, irrigations(t, st), 1)
}

func TestScheduleIrrigations_ExistingTooFarOut(t *testing.T) {
	st, g := setup(t,
		&domain.Crop{IrrigationFrequencyDays: intp(4)},
		&domain.Parcel{},
	)
	ctx := context.Background()
	_, err := st.SaveIrrigation(ctx, &domain.Irrigation{
		ParcelID:    "parcel-1",
		ScheduledAt: now.AddDate(0, 0, 10),
		Status:      domain.IrrigationScheduled,
	})
	require.NoError(t, err)

	n, err := g.ScheduleIrrigations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, irrigations(t, st), 2)
}

func TestScheduleIrrigations_OneDayCycleStillDedupes(t *testing.T) {
	st, g := setup(t,
		&domain.Crop{IrrigationFrequencyDays: intp(1)},
		&domain.Parcel{LastIrrigatedAt: timep(now.AddDate(0, 0, -1))},
	)
	ctx := context.Background()

	_, err := g.ScheduleIrrigations(ctx)
	require.NoError(t, err)
	_, err = g.ScheduleIrrigations(ctx)
	require.NoError(t, err)
	assert.Len(t, irrigations(t, st), 1)
}

func TestScheduleIrrigations_Lookahead(t *testing.T) {
	last := now.AddDate(0, 0, -7).Add(2 * time.Hour)
	st, g := setup(t,
		&domain.Crop{IrrigationFrequencyDays: intp(7)},
		&domain.Parcel{LastIrrigatedAt: &last},
		autoschedule.WithLookahead(6*time.Hour),
	)

	n, err := g.ScheduleIrrigations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, last.AddDate(0, 0, 7), irrigations(t, st)[0].ScheduledAt)
}

func TestScheduleFertilizations(t *testing.T) {
	ctx := context.Background()

	t.Run("never fertilized", func(t *testing.T) {
		st, g := setup(t,
			&domain.Crop{FertilizationFrequencyDays: intp(30), FertilizerType: "NPK 15-15-15"},
			&domain.Parcel{},
		)
		n, err := g.ScheduleFertilizations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		items, err := st.ListFertilizations(ctx, "parcel-1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, now, items[0].ScheduledAt)
		assert.Equal(t, "NPK 15-15-15", items[0].FertilizerType)
		assert.Equal(t, domain.FertilizationScheduled, items[0].Status)

		n, err = g.ScheduleFertilizations(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "an open fertilization blocks another")
	})

	t.Run("pending blocks", func(t *testing.T) {
		st, g := setup(t,
			&domain.Crop{FertilizationFrequencyDays: intp(30), FertilizerType: "Urea"},
			&domain.Parcel{LastFertilizedAt: timep(now.AddDate(0, 0, -40))},
		)
		_, err := st.SaveFertilization(ctx, &domain.Fertilization{ParcelID: "parcel-1", Status: domain.FertilizationPending, ScheduledAt: now})
		require.NoError(t, err)

		n, err := g.ScheduleFertilizations(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("overdue uses due time", func(t *testing.T) {
		last := now.AddDate(0, 0, -40)
		st, g := setup(t,
			&domain.Crop{FertilizationFrequencyDays: intp(30), FertilizerType: "Urea"},
			&domain.Parcel{LastFertilizedAt: &last},
		)
		_, err := g.ScheduleFertilizations(ctx)
		require.NoError(t, err)
		items, err := st.ListFertilizations(ctx, "parcel-1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, last.AddDate(0, 0, 30), items[0].ScheduledAt)
	})

	t.Run("missing fertilizer type", func(t *testing.T) {
		st, g := setup(t,
			&domain.Crop{FertilizationFrequencyDays: intp(30)},
			&domain.Parcel{},
		)
		n, err := g.ScheduleFertilizations(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		items, err := st.ListFertilizations(ctx, "parcel-1")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestChainFertilization(t *testing.T) {
	ctx := context.Background()
	st, g := setup(t,
		&domain.Crop{FertilizationFrequencyDays: intp(30), FertilizerType: "Compost"},
		&domain.Parcel{},
	)
	completed := now.Add(-time.Hour)

	f, err := g.ChainFertilization(ctx, "parcel-1", completed)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, completed.AddDate(0, 0, 30), f.ScheduledAt)
	assert.Equal(t, "Compost", f.FertilizerType)
	assert.Equal(t, domain.FertilizationScheduled, f.Status)

	again, err := g.ChainFertilization(ctx, "parcel-1", completed)
	require.NoError(t, err)
	assert.Nil(t, again)

	items, err := st.ListFertilizations(ctx, "parcel-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = g.ChainFertilization(ctx, "missing", completed)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
