package sqlite

import (
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

type cropModel struct {
	ID                           string `gorm:"primaryKey"`
	Name                         string
	IrrigationFrequencyDays      *int
	IrrigationDurationMinutes    *int
	WaterRequirementLitersPerSqm *float64
	FertilizationFrequencyDays   *int
	FertilizerType               string
}

func (cropModel) TableName() string { return "crops" }

type parcelModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	FarmID           string `gorm:"index"`
	CropID           string
	AreaSqm          *float64
	Latitude         *float64
	Longitude        *float64
	LastIrrigatedAt  *time.Time
	LastFertilizedAt *time.Time
}

func (parcelModel) TableName() string { return "parcels" }

type irrigationModel struct {
	ID                string    `gorm:"primaryKey"`
	ParcelID          string    `gorm:"index"`
	ScheduledAt       time.Time `gorm:"index:idx_irrigations_due,priority:2"`
	DurationMinutes   int
	WaterAmountLiters float64
	Status            string `gorm:"index:idx_irrigations_due,priority:1"`
	StatusDescription string
	StartedAt         *time.Time
	FinishedAt        *time.Time
	RetryCount        int
	LastRetryAt       *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime:false"`
}

func (irrigationModel) TableName() string { return "irrigations" }

type fertilizationModel struct {
	ID             string    `gorm:"primaryKey"`
	ParcelID       string    `gorm:"index"`
	ScheduledAt    time.Time `gorm:"index:idx_fertilizations_due,priority:2"`
	FertilizerType string
	Status         string `gorm:"index:idx_fertilizations_due,priority:1"`
	CompletedAt    *time.Time
	Notes          string
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (fertilizationModel) TableName() string { return "fertilizations" }

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func toCropModel(c *domain.Crop) cropModel {
	return cropModel{
		ID:                           c.ID,
		Name:                         c.Name,
		IrrigationFrequencyDays:      c.IrrigationFrequencyDays,
		IrrigationDurationMinutes:    c.IrrigationDurationMinutes,
		WaterRequirementLitersPerSqm: c.WaterRequirementLitersPerSqm,
		FertilizationFrequencyDays:   c.FertilizationFrequencyDays,
		FertilizerType:               c.FertilizerType,
	}
}

func (m cropModel) toDomain() *domain.Crop {
	return &domain.Crop{
		ID:                           m.ID,
		Name:                         m.Name,
		IrrigationFrequencyDays:      m.IrrigationFrequencyDays,
		IrrigationDurationMinutes:    m.IrrigationDurationMinutes,
		WaterRequirementLitersPerSqm: m.WaterRequirementLitersPerSqm,
		FertilizationFrequencyDays:   m.FertilizationFrequencyDays,
		FertilizerType:               m.FertilizerType,
	}
}

func toParcelModel(p *domain.Parcel) parcelModel {
	return parcelModel{
		ID:               p.ID,
		Name:             p.Name,
		FarmID:           p.FarmID,
		CropID:           p.CropID,
		AreaSqm:          p.AreaSqm,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		LastIrrigatedAt:  utc(p.LastIrrigatedAt),
		LastFertilizedAt: utc(p.LastFertilizedAt),
	}
}

func (m parcelModel) toDomain() *domain.Parcel {
	return &domain.Parcel{
		ID:               m.ID,
		Name:             m.Name,
		FarmID:           m.FarmID,
		CropID:           m.CropID,
		AreaSqm:          m.AreaSqm,
		Latitude:         m.Latitude,
		Longitude:        m.Longitude,
		LastIrrigatedAt:  utc(m.LastIrrigatedAt),
		LastFertilizedAt: utc(m.LastFertilizedAt),
	}
}

func toIrrigationModel(i *domain.Irrigation) irrigationModel {
	return irrigationModel{
		ID:                i.ID,
		ParcelID:          i.ParcelID,
		ScheduledAt:       i.ScheduledAt.UTC(),
		DurationMinutes:   i.DurationMinutes,
		WaterAmountLiters: i.WaterAmountLiters,
		Status:            string(i.Status),
		StatusDescription: i.StatusDescription,
		StartedAt:         utc(i.StartedAt),
		FinishedAt:        utc(i.FinishedAt),
		RetryCount:        i.RetryCount,
		LastRetryAt:       utc(i.LastRetryAt),
		CreatedAt:         i.CreatedAt.UTC(),
		UpdatedAt:         i.UpdatedAt.UTC(),
	}
}

func (m irrigationModel) toDomain() *domain.Irrigation {
	return &domain.Irrigation{
		ID:                m.ID,
		ParcelID:          m.ParcelID,
		ScheduledAt:       m.ScheduledAt.UTC(),
		DurationMinutes:   m.DurationMinutes,
		WaterAmountLiters: m.WaterAmountLiters,
		Status:            domain.IrrigationStatus(m.Status),
		StatusDescription: m.StatusDescription,
		StartedAt:         utc(m.StartedAt),
		FinishedAt:        utc(m.FinishedAt),
		RetryCount:        m.RetryCount,
		LastRetryAt:       utc(m.LastRetryAt),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

func toFertilizationModel(f *domain.Fertilization) fertilizationModel {
	return fertilizationModel{
		ID:             f.ID,
		ParcelID:       f.ParcelID,
		ScheduledAt:    f.ScheduledAt.UTC(),
		FertilizerType: f.FertilizerType,
		Status:         string(f.Status),
		CompletedAt:    utc(f.CompletedAt),
		Notes:          f.Notes,
		CreatedAt:      f.CreatedAt.UTC(),
		UpdatedAt:      f.UpdatedAt.UTC(),
	}
}

func (m fertilizationModel) toDomain() *domain.Fertilization {
	return &domain.Fertilization{
		ID:             m.ID,
		ParcelID:       m.ParcelID,
		ScheduledAt:    m.ScheduledAt.UTC(),
		FertilizerType: m.FertilizerType,
		Status:         domain.FertilizationStatus(m.Status),
		CompletedAt:    utc(m.CompletedAt),
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}
