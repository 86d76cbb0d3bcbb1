// Package sqlite is the single-node store.Store backend, built on gorm with
// the CGO-free glebarez/sqlite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
)

// Store implements store.Store on an SQLite file.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&cropModel{},
		&parcelModel{},
		&irrigationModel{},
		&fertilizationModel{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) upsert(ctx context.Context, value any) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// ── irrigations ──────────────────────────────────────────────────────────────

func (s *Store) GetIrrigation(ctx context.Context, id string) (*domain.Irrigation, error) {
	var m irrigationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.KindIrrigation, id)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveIrrigation(ctx context.Context, irr *domain.Irrigation) (*domain.Irrigation, error) {
	if irr.ID == "" {
		irr.ID = uuid.New().String()
	}
	m := toIrrigationModel(irr)
	if err := s.upsert(ctx, &m); err != nil {
		return nil, fmt.Errorf("save irrigation %s: %w", irr.ID, err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindDueIrrigations(ctx context.Context, statuses []domain.IrrigationStatus, before time.Time) ([]*domain.Irrigation, error) {
	var rows []irrigationModel
	err := s.db.WithContext(ctx).
		Where("status IN ? AND scheduled_at <= ?", strs(statuses), before.UTC()).
		Order("scheduled_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find due irrigations: %w", err)
	}
	return irrigations(rows), nil
}

func (s *Store) ListIrrigations(ctx context.Context, parcelID string, statuses ...domain.IrrigationStatus) ([]*domain.Irrigation, error) {
	q := s.db.WithContext(ctx).Where("parcel_id = ?", parcelID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", strs(statuses))
	}
	var rows []irrigationModel
	if err := q.Order("scheduled_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list irrigations for parcel %s: %w", parcelID, err)
	}
	return irrigations(rows), nil
}

func irrigations(rows []irrigationModel) []*domain.Irrigation {
	out := make([]*domain.Irrigation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

// ── fertilizations ───────────────────────────────────────────────────────────

func (s *Store) GetFertilization(ctx context.Context, id string) (*domain.Fertilization, error) {
	var m fertilizationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.KindFertilization, id)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveFertilization(ctx context.Context, f *domain.Fertilization) (*domain.Fertilization, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	m := toFertilizationModel(f)
	if err := s.upsert(ctx, &m); err != nil {
		return nil, fmt.Errorf("save fertilization %s: %w", f.ID, err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindDueFertilizations(ctx context.Context, statuses []domain.FertilizationStatus, before time.Time) ([]*domain.Fertilization, error) {
	var rows []fertilizationModel
	err := s.db.WithContext(ctx).
		Where("status IN ? AND scheduled_at <= ?", strs(statuses), before.UTC()).
		Order("scheduled_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find due fertilizations: %w", err)
	}
	return fertilizations(rows), nil
}

func (s *Store) ListFertilizations(ctx context.Context, parcelID string, statuses ...domain.FertilizationStatus) ([]*domain.Fertilization, error) {
	q := s.db.WithContext(ctx).Where("parcel_id = ?", parcelID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", strs(statuses))
	}
	var rows []fertilizationModel
	if err := q.Order("scheduled_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list fertilizations for parcel %s: %w", parcelID, err)
	}
	return fertilizations(rows), nil
}

func fertilizations(rows []fertilizationModel) []*domain.Fertilization {
	out := make([]*domain.Fertilization, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

// ── parcels & crops ──────────────────────────────────────────────────────────

func (s *Store) GetParcel(ctx context.Context, id string) (*domain.Parcel, error) {
	var m parcelModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.KindParcel, id)
	}
	return m.toDomain(), nil
}

func (s *Store) ListParcels(ctx context.Context) ([]*domain.Parcel, error) {
	var rows []parcelModel
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	out := make([]*domain.Parcel, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) SaveParcel(ctx context.Context, p *domain.Parcel) (*domain.Parcel, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m := toParcelModel(p)
	if err := s.upsert(ctx, &m); err != nil {
		return nil, fmt.Errorf("save parcel %s: %w", p.ID, err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetCrop(ctx context.Context, id string) (*domain.Crop, error) {
	var m cropModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.KindCrop, id)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveCrop(ctx context.Context, c *domain.Crop) (*domain.Crop, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m := toCropModel(c)
	if err := s.upsert(ctx, &m); err != nil {
		return nil, fmt.Errorf("save crop %s: %w", c.ID, err)
	}
	return m.toDomain(), nil
}

func (s *Store) MarkIrrigated(ctx context.Context, parcelID string, at time.Time) error {
	return s.touchParcel(ctx, parcelID, "last_irrigated_at", at)
}

func (s *Store) MarkFertilized(ctx context.Context, parcelID string, at time.Time) error {
	return s.touchParcel(ctx, parcelID, "last_fertilized_at", at)
}

func (s *Store) touchParcel(ctx context.Context, parcelID, column string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&parcelModel{}).Where("id = ?", parcelID).Update(column, at.UTC())
	if res.Error != nil {
		return fmt.Errorf("update parcel %s: %w", parcelID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{Kind: domain.KindParcel, ID: parcelID}
	}
	return nil
}

func strs[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
