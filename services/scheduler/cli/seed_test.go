package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/store"
)

const testSeed = `crops:
  - id: maize
    name: Maize
    irrigation_frequency_days: 3
    irrigation_duration_minutes: 45
    water_requirement_liters_per_sqm: 4.5
    fertilization_frequency_days: 30
    fertilizer_type: "NPK 15-15-15"
parcels:
  - id: north
    name: North field
    farm_id: farm-1
    crop_id: maize
    area_sqm: 1200
    latitude: 41.99
    longitude: 21.43
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	crops, parcels, err := loadSeed(ctx, st, writeSeed(t, testSeed))
	require.NoError(t, err)
	assert.Equal(t, 1, crops)
	assert.Equal(t, 1, parcels)

	crop, err := st.GetCrop(ctx, "maize")
	require.NoError(t, err)
	require.NotNil(t, crop.IrrigationFrequencyDays)
	assert.Equal(t, 3, *crop.IrrigationFrequencyDays)
	require.NotNil(t, crop.WaterRequirementLitersPerSqm)
	assert.InDelta(t, 4.5, *crop.WaterRequirementLitersPerSqm, 1e-9)

	p, err := st.GetParcel(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, "maize", p.CropID)
	require.NotNil(t, p.AreaSqm)
	assert.InDelta(t, 1200.0, *p.AreaSqm, 1e-9)
	_, _, ok := p.Coordinates()
	assert.True(t, ok)
}

func TestLoadSeed_KeepsLastActionTimes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	path := writeSeed(t, testSeed)

	_, _, err := loadSeed(ctx, st, path)
	require.NoError(t, err)
	at := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkIrrigated(ctx, "north", at))

	_, _, err = loadSeed(ctx, st, path)
	require.NoError(t, err)

	p, err := st.GetParcel(ctx, "north")
	require.NoError(t, err)
	require.NotNil(t, p.LastIrrigatedAt)
	assert.True(t, at.Equal(*p.LastIrrigatedAt))
}

func TestLoadSeed_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := loadSeed(ctx, store.NewMemory(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = loadSeed(ctx, store.NewMemory(), writeSeed(t, "parcels:\n  - name: nameless\n"))
	assert.ErrorContains(t, err, "without id")
}
