package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

// Memory is an arena store keyed by identifier. Every read and write copies the
// record, so callers never alias stored state.
type Memory struct {
	mu             sync.RWMutex
	parcels        map[string]*domain.Parcel
	crops          map[string]*domain.Crop
	irrigations    map[string]*domain.Irrigation
	fertilizations map[string]*domain.Fertilization
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		parcels:        make(map[string]*domain.Parcel),
		crops:          make(map[string]*domain.Crop),
		irrigations:    make(map[string]*domain.Irrigation),
		fertilizations: make(map[string]*domain.Fertilization),
	}
}

func (m *Memory) Close() error { return nil }

// ── irrigations ──────────────────────────────────────────────────────────────

func (m *Memory) GetIrrigation(_ context.Context, id string) (*domain.Irrigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	irr, ok := m.irrigations[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindIrrigation, ID: id}
	}
	return irr.Clone(), nil
}

func (m *Memory) SaveIrrigation(_ context.Context, irr *domain.Irrigation) (*domain.Irrigation, error) {
	if irr.ID == "" {
		irr.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.irrigations[irr.ID] = irr.Clone()
	m.mu.Unlock()
	return irr.Clone(), nil
}

func (m *Memory) FindDueIrrigations(_ context.Context, statuses []domain.IrrigationStatus, before time.Time) ([]*domain.Irrigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Irrigation
	for _, irr := range m.irrigations {
		if slices.Contains(statuses, irr.Status) && !irr.ScheduledAt.After(before) {
			out = append(out, irr.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) ListIrrigations(_ context.Context, parcelID string, statuses ...domain.IrrigationStatus) ([]*domain.Irrigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Irrigation
	for _, irr := range m.irrigations {
		if irr.ParcelID != parcelID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, irr.Status) {
			continue
		}
		out = append(out, irr.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// ── fertilizations ───────────────────────────────────────────────────────────

func (m *Memory) GetFertilization(_ context.Context, id string) (*domain.Fertilization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fertilizations[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindFertilization, ID: id}
	}
	return f.Clone(), nil
}

func (m *Memory) SaveFertilization(_ context.Context, f *domain.Fertilization) (*domain.Fertilization, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.fertilizations[f.ID] = f.Clone()
	m.mu.Unlock()
	return f.Clone(), nil
}

func (m *Memory) FindDueFertilizations(_ context.Context, statuses []domain.FertilizationStatus, before time.Time) ([]*domain.Fertilization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Fertilization
	for _, f := range m.fertilizations {
		if slices.Contains(statuses, f.Status) && !f.ScheduledAt.After(before) {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) ListFertilizations(_ context.Context, parcelID string, statuses ...domain.FertilizationStatus) ([]*domain.Fertilization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Fertilization
	for _, f := range m.fertilizations {
		if f.ParcelID != parcelID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, f.Status) {
			continue
		}
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// ── parcels & crops ──────────────────────────────────────────────────────────

func (m *Memory) GetParcel(_ context.Context, id string) (*domain.Parcel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parcels[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindParcel, ID: id}
	}
	return p.Clone(), nil
}

func (m *Memory) ListParcels(_ context.Context) ([]*domain.Parcel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Parcel, 0, len(m.parcels))
	for _, p := range m.parcels {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveParcel(_ context.Context, p *domain.Parcel) (*domain.Parcel, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.parcels[p.ID] = p.Clone()
	m.mu.Unlock()
	return p.Clone(), nil
}

func (m *Memory) GetCrop(_ context.Context, id string) (*domain.Crop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.crops[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindCrop, ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) SaveCrop(_ context.Context, c *domain.Crop) (*domain.Crop, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	m.mu.Lock()
	m.crops[c.ID] = &cp
	m.mu.Unlock()
	out := *c
	return &out, nil
}

func (m *Memory) MarkIrrigated(_ context.Context, parcelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parcels[parcelID]
	if !ok {
		return &domain.NotFoundError{Kind: domain.KindParcel, ID: parcelID}
	}
	t := at
	p.LastIrrigatedAt = &t
	return nil
}

func (m *Memory) MarkFertilized(_ context.Context, parcelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parcels[parcelID]
	if !ok {
		return &domain.NotFoundError{Kind: domain.KindParcel, ID: parcelID}
	}
	t := at
	p.LastFertilizedAt = &t
	return nil
}
