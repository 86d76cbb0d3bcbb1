// Package storetest holds behaviour checks shared by every store.Store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("IrrigationRoundTrip", func(t *testing.T) { testIrrigationRoundTrip(t, newStore(t)) })
	t.Run("FindDueIrrigations", func(t *testing.T) { testFindDueIrrigations(t, newStore(t)) })
	t.Run("ListIrrigations", func(t *testing.T) { testListIrrigations(t, newStore(t)) })
	t.Run("FertilizationRoundTrip", func(t *testing.T) { testFertilizationRoundTrip(t, newStore(t)) })
	t.Run("ParcelTimestamps", func(t *testing.T) { testParcelTimestamps(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

var base = time.Date(2025, 4, 10, 6, 0, 0, 0, time.UTC)

func seedParcel(t *testing.T, s store.Store) *domain.Parcel {
	t.Helper()
	ctx := context.Background()
	freq := 7
	crop, err := s.SaveCrop(ctx, &domain.Crop{Name: "Tomato", IrrigationFrequencyDays: &freq, FertilizerType: "NPK"})
	require.NoError(t, err)
	area := 50.0
	p, err := s.SaveParcel(ctx, &domain.Parcel{Name: "North field", FarmID: "farm-1", CropID: crop.ID, AreaSqm: &area})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	return p
}

func testIrrigationRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedParcel(t, s)

	irr, err := s.SaveIrrigation(ctx, &domain.Irrigation{
		ParcelID:          p.ID,
		ScheduledAt:       base,
		DurationMinutes:   30,
		WaterAmountLiters: 100,
		Status:            domain.IrrigationScheduled,
		StatusDescription: domain.IrrigationScheduled.Description(),
		CreatedAt:         base,
		UpdatedAt:         base,
	})
	require.NoError(t, err)
	require.NotEmpty(t, irr.ID)

	started := base.Add(time.Minute)
	irr.Status = domain.IrrigationInProgress
	irr.StartedAt = &started
	irr.RetryCount = 2
	_, err = s.SaveIrrigation(ctx, irr)
	require.NoError(t, err)

	got, err := s.GetIrrigation(ctx, irr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IrrigationInProgress, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, 30, got.DurationMinutes)
	assert.InDelta(t, 100.0, got.WaterAmountLiters, 0.001)
}

func testFindDueIrrigations(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedParcel(t, s)

	mk := func(at time.Time, st domain.IrrigationStatus) string {
		irr, err := s.SaveIrrigation(ctx, &domain.Irrigation{ParcelID: p.ID, ScheduledAt: at, Status: st, CreatedAt: base, UpdatedAt: base})
		require.NoError(t, err)
		return irr.ID
	}
	late := mk(base.Add(-time.Hour), domain.IrrigationScheduled)
	exact := mk(base, domain.IrrigationRetrying)
	mk(base.Add(time.Minute), domain.IrrigationScheduled)
	mk(base.Add(-2*time.Hour), domain.IrrigationCompleted)

	due, err := s.FindDueIrrigations(ctx, []domain.IrrigationStatus{domain.IrrigationScheduled, domain.IrrigationRetrying}, base)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, late, due[0].ID)
	assert.Equal(t, exact, due[1].ID)
}

func testListIrrigations(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedParcel(t, s)
	other := seedParcel(t, s)

	for _, st := range []domain.IrrigationStatus{domain.IrrigationScheduled, domain.IrrigationCompleted, domain.IrrigationScheduled} {
		_, err := s.SaveIrrigation(ctx, &domain.Irrigation{ParcelID: p.ID, ScheduledAt: base, Status: st, CreatedAt: base, UpdatedAt: base})
		require.NoError(t, err)
	}
	_, err := s.SaveIrrigation(ctx, &domain.Irrigation{ParcelID: other.ID, ScheduledAt: base, Status: domain.IrrigationScheduled, CreatedAt: base, UpdatedAt: base})
	require.NoError(t, err)

	all, err := s.ListIrrigations(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scheduled, err := s.ListIrrigations(ctx, p.ID, domain.IrrigationScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)
}

func testFertilizationRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedParcel(t, s)

	f, err := s.SaveFertilization(ctx, &domain.Fertilization{
		ParcelID: p.ID, ScheduledAt: base, FertilizerType: "NPK",
		Status: domain.FertilizationScheduled, CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)

	due, err := s.FindDueFertilizations(ctx, []domain.FertilizationStatus{domain.FertilizationScheduled}, base)
	require.NoError(t, err)
	require.Len(t, due, 1)

	done := base.Add(time.Hour)
	f.Status = domain.FertilizationCompleted
	f.CompletedAt = &done
	f.Notes = "applied by hand"
	_, err = s.SaveFertilization(ctx, f)
	require.NoError(t, err)

	got, err := s.GetFertilization(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FertilizationCompleted, got.Status)
	assert.Equal(t, "applied by hand", got.Notes)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	open, err := s.ListFertilizations(ctx, p.ID, domain.FertilizationScheduled, domain.FertilizationPending)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func testParcelTimestamps(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedParcel(t, s)

	require.NoError(t, s.MarkIrrigated(ctx, p.ID, base))
	require.NoError(t, s.MarkFertilized(ctx, p.ID, base.Add(time.Hour)))

	got, err := s.GetParcel(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastIrrigatedAt)
	require.NotNil(t, got.LastFertilizedAt)
	assert.True(t, base.Equal(*got.LastIrrigatedAt))
	assert.True(t, base.Add(time.Hour).Equal(*got.LastFertilizedAt))

	crop, err := s.GetCrop(ctx, got.CropID)
	require.NoError(t, err)
	require.NotNil(t, crop.IrrigationFrequencyDays)
	assert.Equal(t, 7, *crop.IrrigationFrequencyDays)

	parcels, err := s.ListParcels(ctx)
	require.NoError(t, err)
	assert.Len(t, parcels, 1)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	var nf *domain.NotFoundError

	_, err := s.GetIrrigation(ctx, "00000000-0000-0000-0000-000000000001")
	assert.True(t, errors.As(err, &nf))
	_, err = s.GetFertilization(ctx, "00000000-0000-0000-0000-000000000002")
	assert.True(t, errors.As(err, &nf))
	_, err = s.GetParcel(ctx, "00000000-0000-0000-0000-000000000003")
	assert.True(t, errors.As(err, &nf))
	err = s.MarkIrrigated(ctx, "00000000-0000-0000-0000-000000000003", base)
	assert.True(t, errors.As(err, &nf))
}
