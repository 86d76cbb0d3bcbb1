// Package store defines the persistence contracts consumed by the scheduling
// core and an in-memory arena implementation of them.
//
// Tasks and parcels reference each other only by identifier; callers resolve
// cross references through the store.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

// IrrigationStore persists irrigation task records.
type IrrigationStore interface {
	// GetIrrigation returns *domain.NotFoundError when id is unknown.
	GetIrrigation(ctx context.Context, id string) (*domain.Irrigation, error)
	// SaveIrrigation inserts or replaces the record, assigning an ID if empty.
	SaveIrrigation(ctx context.Context, irr *domain.Irrigation) (*domain.Irrigation, error)
	// FindDueIrrigations returns records in one of statuses scheduled at or
	// before the given time, oldest first.
	FindDueIrrigations(ctx context.Context, statuses []domain.IrrigationStatus, before time.Time) ([]*domain.Irrigation, error)
	// ListIrrigations returns the parcel's irrigations, optionally filtered by status.
	ListIrrigations(ctx context.Context, parcelID string, statuses ...domain.IrrigationStatus) ([]*domain.Irrigation, error)
}

// FertilizationStore persists fertilization task records.
type FertilizationStore interface {
	GetFertilization(ctx context.Context, id string) (*domain.Fertilization, error)
	SaveFertilization(ctx context.Context, f *domain.Fertilization) (*domain.Fertilization, error)
	FindDueFertilizations(ctx context.Context, statuses []domain.FertilizationStatus, before time.Time) ([]*domain.Fertilization, error)
	ListFertilizations(ctx context.Context, parcelID string, statuses ...domain.FertilizationStatus) ([]*domain.Fertilization, error)
}

// ParcelStore exposes parcel and crop data. The core only writes the two
// last-action timestamps.
type ParcelStore interface {
	GetParcel(ctx context.Context, id string) (*domain.Parcel, error)
	ListParcels(ctx context.Context) ([]*domain.Parcel, error)
	GetCrop(ctx context.Context, id string) (*domain.Crop, error)
	MarkIrrigated(ctx context.Context, parcelID string, at time.Time) error
	MarkFertilized(ctx context.Context, parcelID string, at time.Time) error
}

// Store is the full contract implemented by every backend.
type Store interface {
	IrrigationStore
	FertilizationStore
	ParcelStore
	SaveParcel(ctx context.Context, p *domain.Parcel) (*domain.Parcel, error)
	SaveCrop(ctx context.Context, c *domain.Crop) (*domain.Crop, error)
	Close() error
}

// SortByPriority orders irrigations by status priority, then scheduled time.
func SortByPriority(items []*domain.Irrigation) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].Status.Priority(), items[j].Status.Priority()
		if pi != pj {
			return pi < pj
		}
		return items[i].ScheduledAt.Before(items[j].ScheduledAt)
	})
}
