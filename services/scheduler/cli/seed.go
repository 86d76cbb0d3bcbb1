package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
)

// seedFile lists the crops and parcels a deployment starts with. Farm and
// parcel management live outside this service; the file is how they reach it.
type seedFile struct {
	Crops   []seedCrop   `mapstructure:"crops"`
	Parcels []seedParcel `mapstructure:"parcels"`
}

type seedCrop struct {
	ID                           string   `mapstructure:"id"`
	Name                         string   `mapstructure:"name"`
	IrrigationFrequencyDays      *int     `mapstructure:"irrigation_frequency_days"`
	IrrigationDurationMinutes    *int     `mapstructure:"irrigation_duration_minutes"`
	WaterRequirementLitersPerSqm *float64 `mapstructure:"water_requirement_liters_per_sqm"`
	FertilizationFrequencyDays   *int     `mapstructure:"fertilization_frequency_days"`
	FertilizerType               string   `mapstructure:"fertilizer_type"`
}

type seedParcel struct {
	ID        string   `mapstructure:"id"`
	Name      string   `mapstructure:"name"`
	FarmID    string   `mapstructure:"farm_id"`
	CropID    string   `mapstructure:"crop_id"`
	AreaSqm   *float64 `mapstructure:"area_sqm"`
	Latitude  *float64 `mapstructure:"latitude"`
	Longitude *float64 `mapstructure:"longitude"`
}

// loadSeed upserts the crops and parcels in path. Last-action timestamps of
// parcels that already exist are preserved.
func loadSeed(ctx context.Context, st store.Store, path string) (crops, parcels int, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return 0, 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := v.Unmarshal(&seed); err != nil {
		return 0, 0, fmt.Errorf("decode seed file: %w", err)
	}

	for _, c := range seed.Crops {
		if c.ID == "" {
			return crops, parcels, errors.New("seed crop without id")
		}
		_, err := st.SaveCrop(ctx, &domain.Crop{
			ID:                           c.ID,
			Name:                         c.Name,
			IrrigationFrequencyDays:      c.IrrigationFrequencyDays,
			IrrigationDurationMinutes:    c.IrrigationDurationMinutes,
			WaterRequirementLitersPerSqm: c.WaterRequirementLitersPerSqm,
			FertilizationFrequencyDays:   c.FertilizationFrequencyDays,
			FertilizerType:               c.FertilizerType,
		})
		if err != nil {
			return crops, parcels, fmt.Errorf("save crop %s: %w", c.ID, err)
		}
		crops++
	}

	for _, p := range seed.Parcels {
		if p.ID == "" {
			return crops, parcels, errors.New("seed parcel without id")
		}
		parcel := &domain.Parcel{
			ID:        p.ID,
			Name:      p.Name,
			FarmID:    p.FarmID,
			CropID:    p.CropID,
			AreaSqm:   p.AreaSqm,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}
		existing, err := st.GetParcel(ctx, p.ID)
		var notFound *domain.NotFoundError
		switch {
		case err == nil:
			parcel.LastIrrigatedAt = existing.LastIrrigatedAt
			parcel.LastFertilizedAt = existing.LastFertilizedAt
		case !errors.As(err, &notFound):
			return crops, parcels, fmt.Errorf("load parcel %s: %w", p.ID, err)
		}
		if _, err := st.SaveParcel(ctx, parcel); err != nil {
			return crops, parcels, fmt.Errorf("save parcel %s: %w", p.ID, err)
		}
		parcels++
	}
	return crops, parcels, nil
}
