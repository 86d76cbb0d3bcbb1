package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

func TestIrrigation_FireFollowsLifecycle(t *testing.T) {
	tests := []struct {
		name  string
		from  domain.IrrigationStatus
		event string
		want  domain.IrrigationStatus
	}{
		{"start scheduled", domain.IrrigationScheduled, domain.EventStart, domain.IrrigationInProgress},
		{"start retrying", domain.IrrigationRetrying, domain.EventStart, domain.IrrigationInProgress},
		{"complete", domain.IrrigationInProgress, domain.EventComplete, domain.IrrigationCompleted},
		{"reschedule after failure", domain.IrrigationInProgress, domain.EventReschedule, domain.IrrigationScheduled},
		{"fail", domain.IrrigationInProgress, domain.EventFail, domain.IrrigationFailed},
		{"expire scheduled", domain.IrrigationScheduled, domain.EventExpire, domain.IrrigationFailed},
		{"expire retrying", domain.IrrigationRetrying, domain.EventExpire, domain.IrrigationFailed},
		{"stop", domain.IrrigationInProgress, domain.EventStop, domain.IrrigationStopped},
		{"cancel", domain.IrrigationScheduled, domain.EventCancel, domain.IrrigationCancelled},
		{"hold", domain.IrrigationScheduled, domain.EventHold, domain.IrrigationRetrying},
		{"resume", domain.IrrigationRetrying, domain.EventResume, domain.IrrigationScheduled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			irr := &domain.Irrigation{ID: "i1", Status: tc.from}
			require.NoError(t, irr.Fire(tc.event))
			assert.Equal(t, tc.want, irr.Status)
		})
	}
}

func TestIrrigation_FireRejectsUnknownEdges(t *testing.T) {
	tests := []struct {
		from  domain.IrrigationStatus
		event string
	}{
		{domain.IrrigationScheduled, domain.EventStop},
		{domain.IrrigationStopped, domain.EventStop},
		{domain.IrrigationCompleted, domain.EventStart},
		{domain.IrrigationFailed, domain.EventStart},
		{domain.IrrigationCancelled, domain.EventResume},
		{domain.IrrigationInProgress, domain.EventStart},
		{domain.IrrigationRetrying, domain.EventComplete},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+tc.event, func(t *testing.T) {
			irr := &domain.Irrigation{ID: "i1", Status: tc.from}
			err := irr.Fire(tc.event)

			var invalid *domain.InvalidStateTransitionError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, string(tc.from), invalid.From)
			assert.Equal(t, tc.from, irr.Status, "status must not change")
		})
	}
}

func TestIrrigation_TerminalStatusesHaveNoExit(t *testing.T) {
	events := []string{
		domain.EventStart, domain.EventComplete, domain.EventReschedule, domain.EventFail,
		domain.EventExpire, domain.EventStop, domain.EventCancel, domain.EventHold, domain.EventResume,
	}
	for _, s := range []domain.IrrigationStatus{
		domain.IrrigationCompleted, domain.IrrigationFailed, domain.IrrigationCancelled, domain.IrrigationStopped,
	} {
		assert.True(t, s.IsTerminal())
		irr := &domain.Irrigation{Status: s}
		for _, ev := range events {
			assert.False(t, irr.Can(ev), "%s should not allow %s", s, ev)
		}
	}
}

func TestIrrigationEventFor(t *testing.T) {
	ev, ok := domain.IrrigationEventFor(domain.IrrigationScheduled, domain.IrrigationRetrying)
	require.True(t, ok)
	assert.Equal(t, domain.EventHold, ev)

	ev, ok = domain.IrrigationEventFor(domain.IrrigationInProgress, domain.IrrigationFailed)
	require.True(t, ok)
	assert.Equal(t, domain.EventFail, ev)

	ev, ok = domain.IrrigationEventFor(domain.IrrigationScheduled, domain.IrrigationFailed)
	require.True(t, ok)
	assert.Equal(t, domain.EventExpire, ev)

	_, ok = domain.IrrigationEventFor(domain.IrrigationCompleted, domain.IrrigationScheduled)
	assert.False(t, ok)

	_, ok = domain.IrrigationEventFor(domain.IrrigationScheduled, domain.IrrigationCompleted)
	assert.False(t, ok)
}

func TestFertilization_FireFollowsLifecycle(t *testing.T) {
	f := &domain.Fertilization{ID: "f1", Status: domain.FertilizationScheduled}
	require.NoError(t, f.Fire(domain.EventPend))
	assert.Equal(t, domain.FertilizationPending, f.Status)

	// PENDING is only entered from SCHEDULED.
	require.Error(t, f.Fire(domain.EventPend))

	require.NoError(t, f.Fire(domain.EventComplete))
	assert.Equal(t, domain.FertilizationCompleted, f.Status)
	assert.True(t, f.Status.IsTerminal())

	err := f.Fire(domain.EventCancel)
	var invalid *domain.InvalidStateTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, domain.KindFertilization, invalid.Kind)
}

func TestFertilization_CancelFromScheduled(t *testing.T) {
	f := &domain.Fertilization{ID: "f1", Status: domain.FertilizationScheduled}
	require.NoError(t, f.Fire(domain.EventCancel))
	assert.Equal(t, domain.FertilizationCancelled, f.Status)
}

func TestIrrigationStatus_PriorityOrder(t *testing.T) {
	ordered := []domain.IrrigationStatus{
		domain.IrrigationInProgress, domain.IrrigationRetrying, domain.IrrigationScheduled,
		domain.IrrigationFailed, domain.IrrigationStopped, domain.IrrigationCancelled, domain.IrrigationCompleted,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Priority(), ordered[i].Priority())
	}
	for _, s := range ordered {
		assert.NotEmpty(t, s.Description())
		assert.True(t, s.IsValid())
	}
	assert.False(t, domain.IrrigationStatus("PAUSED").IsValid())
}

func TestParcel_Coordinates(t *testing.T) {
	lat, lon := 41.99, 21.43
	p := &domain.Parcel{Latitude: &lat}
	_, _, ok := p.Coordinates()
	assert.False(t, ok, "both coordinates are required")

	p.Longitude = &lon
	gotLat, gotLon, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, lat, gotLat)
	assert.Equal(t, lon, gotLon)
}

func TestIrrigation_CloneDoesNotSharePointers(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	orig := &domain.Irrigation{ID: "i1", StartedAt: &now}
	c := orig.Clone()
	*c.StartedAt = now.Add(1)
	assert.Equal(t, now, *orig.StartedAt)
}
