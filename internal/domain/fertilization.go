package domain

import "time"

// FertilizationStatus represents the states a fertilization can be in.
type FertilizationStatus string

const (
	FertilizationScheduled FertilizationStatus = "SCHEDULED"
	FertilizationPending   FertilizationStatus = "PENDING"
	FertilizationCompleted FertilizationStatus = "COMPLETED"
	FertilizationCancelled FertilizationStatus = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s FertilizationStatus) IsTerminal() bool {
	return s == FertilizationCompleted || s == FertilizationCancelled
}

// Fertilization is one fertilizing event for a parcel. Completion and
// cancellation are user driven; there is no automated failure path.
type Fertilization struct {
	ID             string              `json:"id"`
	ParcelID       string              `json:"parcel_id"`
	ScheduledAt    time.Time           `json:"scheduled_at"`
	FertilizerType string              `json:"fertilizer_type,omitempty"`
	Status         FertilizationStatus `json:"status"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (f *Fertilization) Clone() *Fertilization {
	c := *f
	c.CompletedAt = cloneTime(f.CompletedAt)
	return &c
}
