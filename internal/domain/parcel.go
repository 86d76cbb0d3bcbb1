package domain

import "time"

// Parcel is a plot of land owned by a farm. The scheduler only ever writes
// LastIrrigatedAt and LastFertilizedAt; everything else is managed elsewhere.
type Parcel struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	FarmID           string     `json:"farm_id"`
	CropID           string     `json:"crop_id,omitempty"`
	AreaSqm          *float64   `json:"area_sqm,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	LastIrrigatedAt  *time.Time `json:"last_irrigated_at,omitempty"`
	LastFertilizedAt *time.Time `json:"last_fertilized_at,omitempty"`
}

// Coordinates reports the parcel location. ok is false unless both are set.
func (p *Parcel) Coordinates() (lat, lon float64, ok bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}

// HasCrop reports whether a crop is assigned to the parcel.
func (p *Parcel) HasCrop() bool { return p.CropID != "" }

// Crop is a cultivation profile. Optional fields are nil when not configured.
type Crop struct {
	ID                           string   `json:"id"`
	Name                         string   `json:"name"`
	IrrigationFrequencyDays      *int     `json:"irrigation_frequency_days,omitempty"`
	IrrigationDurationMinutes    *int     `json:"irrigation_duration_minutes,omitempty"`
	WaterRequirementLitersPerSqm *float64 `json:"water_requirement_liters_per_sqm,omitempty"`
	FertilizationFrequencyDays   *int     `json:"fertilization_frequency_days,omitempty"`
	FertilizerType               string   `json:"fertilizer_type,omitempty"`
}

// Clone returns a copy whose timestamp pointers are not shared.
func (p *Parcel) Clone() *Parcel {
	c := *p
	c.LastIrrigatedAt = cloneTime(p.LastIrrigatedAt)
	c.LastFertilizedAt = cloneTime(p.LastFertilizedAt)
	return &c
}
