package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/store"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore wraps a pgxpool. Close closes the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(...any) error
}

// ── irrigations ──────────────────────────────────────────────────────────────

const irrigationColumns = `id, parcel_id, scheduled_at, duration_minutes, water_amount_liters,
	status, status_description, started_at, finished_at, retry_count, last_retry_at,
	created_at, updated_at`

func (s *Store) GetIrrigation(ctx context.Context, id string) (*domain.Irrigation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+irrigationColumns+` FROM irrigations WHERE id = $1`, id)
	irr, err := scanIrrigation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: domain.KindIrrigation, ID: id}
	}
	return irr, err
}

func (s *Store) SaveIrrigation(ctx context.Context, irr *domain.Irrigation) (*domain.Irrigation, error) {
	if irr.ID == "" {
		irr.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO irrigations (`+irrigationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			scheduled_at        = EXCLUDED.scheduled_at,
			duration_minutes    = EXCLUDED.duration_minutes,
			water_amount_liters = EXCLUDED.water_amount_liters,
			status              = EXCLUDED.status,
			status_description  = EXCLUDED.status_description,
			started_at          = EXCLUDED.started_at,
			finished_at         = EXCLUDED.finished_at,
			retry_count         = EXCLUDED.retry_count,
			last_retry_at       = EXCLUDED.last_retry_at,
			updated_at          = EXCLUDED.updated_at
	`,
		irr.ID, irr.ParcelID, irr.ScheduledAt, irr.DurationMinutes, irr.WaterAmountLiters,
		string(irr.Status), irr.StatusDescription, irr.StartedAt, irr.FinishedAt,
		irr.RetryCount, irr.LastRetryAt, irr.CreatedAt, irr.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save irrigation %s: %w", irr.ID, err)
	}
	return irr.Clone(), nil
}

func (s *Store) FindDueIrrigations(ctx context.Context, statuses []domain.IrrigationStatus, before time.Time) ([]*domain.Irrigation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+irrigationColumns+`
		FROM irrigations
		WHERE status = ANY($1) AND scheduled_at <= $2
		ORDER BY scheduled_at
	`, statusStrings(statuses), before)
	if err != nil {
		return nil, fmt.Errorf("find due irrigations: %w", err)
	}
	return collectIrrigations(rows)
}

func (s *Store) ListIrrigations(ctx context.Context, parcelID string, statuses ...domain.IrrigationStatus) ([]*domain.Irrigation, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+irrigationColumns+` FROM irrigations
			WHERE parcel_id = $1 ORDER BY scheduled_at`, parcelID)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+irrigationColumns+` FROM irrigations
			WHERE parcel_id = $1 AND status = ANY($2) ORDER BY scheduled_at`, parcelID, statusStrings(statuses))
	}
	if err != nil {
		return nil, fmt.Errorf("list irrigations for parcel %s: %w", parcelID, err)
	}
	return collectIrrigations(rows)
}

func collectIrrigations(rows pgx.Rows) ([]*domain.Irrigation, error) {
	defer rows.Close()
	var out []*domain.Irrigation
	for rows.Next() {
		irr, err := scanIrrigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, irr)
	}
	return out, rows.Err()
}

func scanIrrigation(row rowScanner) (*domain.Irrigation, error) {
	var irr domain.Irrigation
	var status string
	err := row.Scan(
		&irr.ID, &irr.ParcelID, &irr.ScheduledAt, &irr.DurationMinutes, &irr.WaterAmountLiters,
		&status, &irr.StatusDescription, &irr.StartedAt, &irr.FinishedAt,
		&irr.RetryCount, &irr.LastRetryAt, &irr.CreatedAt, &irr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan irrigation: %w", err)
	}
	irr.Status = domain.IrrigationStatus(status)
	return &irr, nil
}

// ── fertilizations ───────────────────────────────────────────────────────────

const fertilizationColumns = `id, parcel_id, scheduled_at, fertilizer_type, status,
	completed_at, notes, created_at, updated_at`

func (s *Store) GetFertilization(ctx context.Context, id string) (*domain.Fertilization, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fertilizationColumns+` FROM fertilizations WHERE id = $1`, id)
	f, err := scanFertilization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: domain.KindFertilization, ID: id}
	}
	return f, err
}

func (s *Store) SaveFertilization(ctx context.Context, f *domain.Fertilization) (*domain.Fertilization, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fertilizations (`+fertilizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			scheduled_at    = EXCLUDED.scheduled_at,
			fertilizer_type = EXCLUDED.fertilizer_type,
			status          = EXCLUDED.status,
			completed_at    = EXCLUDED.completed_at,
			notes           = EXCLUDED.notes,
			updated_at      = EXCLUDED.updated_at
	`,
		f.ID, f.ParcelID, f.ScheduledAt, f.FertilizerType, string(f.Status),
		f.CompletedAt, f.Notes, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save fertilization %s: %w", f.ID, err)
	}
	return f.Clone(), nil
}

func (s *Store) FindDueFertilizations(ctx context.Context, statuses []domain.FertilizationStatus, before time.Time) ([]*domain.Fertilization, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fertilizationColumns+`
		FROM fertilizations
		WHERE status = ANY($1) AND scheduled_at <= $2
		ORDER BY scheduled_at
	`, statusStrings(statuses), before)
	if err != nil {
		return nil, fmt.Errorf("find due fertilizations: %w", err)
	}
	return collectFertilizations(rows)
}

func (s *Store) ListFertilizations(ctx context.Context, parcelID string, statuses ...domain.FertilizationStatus) ([]*domain.Fertilization, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+fertilizationColumns+` FROM fertilizations
			WHERE parcel_id = $1 ORDER BY scheduled_at`, parcelID)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+fertilizationColumns+` FROM fertilizations
			WHERE parcel_id = $1 AND status = ANY($2) ORDER BY scheduled_at`, parcelID, statusStrings(statuses))
	}
	if err != nil {
		return nil, fmt.Errorf("list fertilizations for parcel %s: %w", parcelID, err)
	}
	return collectFertilizations(rows)
}

func collectFertilizations(rows pgx.Rows) ([]*domain.Fertilization, error) {
	defer rows.Close()
	var out []*domain.Fertilization
	for rows.Next() {
		f, err := scanFertilization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFertilization(row rowScanner) (*domain.Fertilization, error) {
	var f domain.Fertilization
	var status string
	err := row.Scan(
		&f.ID, &f.ParcelID, &f.ScheduledAt, &f.FertilizerType, &status,
		&f.CompletedAt, &f.Notes, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan fertilization: %w", err)
	}
	f.Status = domain.FertilizationStatus(status)
	return &f, nil
}

// ── parcels & crops ──────────────────────────────────────────────────────────

const parcelColumns = `id, name, farm_id, crop_id, area_sqm, latitude, longitude,
	last_irrigated_at, last_fertilized_at`

func (s *Store) GetParcel(ctx context.Context, id string) (*domain.Parcel, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, id)
	p, err := scanParcel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: domain.KindParcel, ID: id}
	}
	return p, err
}

func (s *Store) ListParcels(ctx context.Context) ([]*domain.Parcel, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+parcelColumns+` FROM parcels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	defer rows.Close()

	var out []*domain.Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveParcel(ctx context.Context, p *domain.Parcel) (*domain.Parcel, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	var cropID *string
	if p.CropID != "" {
		cropID = &p.CropID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parcels (`+parcelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name               = EXCLUDED.name,
			farm_id            = EXCLUDED.farm_id,
			crop_id            = EXCLUDED.crop_id,
			area_sqm           = EXCLUDED.area_sqm,
			latitude           = EXCLUDED.latitude,
			longitude          = EXCLUDED.longitude,
			last_irrigated_at  = EXCLUDED.last_irrigated_at,
			last_fertilized_at = EXCLUDED.last_fertilized_at
	`,
		p.ID, p.Name, p.FarmID, cropID, p.AreaSqm, p.Latitude, p.Longitude,
		p.LastIrrigatedAt, p.LastFertilizedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save parcel %s: %w", p.ID, err)
	}
	return p.Clone(), nil
}

func scanParcel(row rowScanner) (*domain.Parcel, error) {
	var p domain.Parcel
	var cropID *string
	err := row.Scan(
		&p.ID, &p.Name, &p.FarmID, &cropID, &p.AreaSqm, &p.Latitude, &p.Longitude,
		&p.LastIrrigatedAt, &p.LastFertilizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan parcel: %w", err)
	}
	if cropID != nil {
		p.CropID = *cropID
	}
	return &p, nil
}

func (s *Store) GetCrop(ctx context.Context, id string) (*domain.Crop, error) {
	var c domain.Crop
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, irrigation_frequency_days, irrigation_duration_minutes,
		       water_requirement_liters_per_sqm, fertilization_frequency_days, fertilizer_type
		FROM crops WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.IrrigationFrequencyDays, &c.IrrigationDurationMinutes,
		&c.WaterRequirementLitersPerSqm, &c.FertilizationFrequencyDays, &c.FertilizerType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Kind: domain.KindCrop, ID: id}
		}
		return nil, fmt.Errorf("get crop %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) SaveCrop(ctx context.Context, c *domain.Crop) (*domain.Crop, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crops (id, name, irrigation_frequency_days, irrigation_duration_minutes,
			water_requirement_liters_per_sqm, fertilization_frequency_days, fertilizer_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name                             = EXCLUDED.name,
			irrigation_frequency_days        = EXCLUDED.irrigation_frequency_days,
			irrigation_duration_minutes      = EXCLUDED.irrigation_duration_minutes,
			water_requirement_liters_per_sqm = EXCLUDED.water_requirement_liters_per_sqm,
			fertilization_frequency_days     = EXCLUDED.fertilization_frequency_days,
			fertilizer_type                  = EXCLUDED.fertilizer_type
	`,
		c.ID, c.Name, c.IrrigationFrequencyDays, c.IrrigationDurationMinutes,
		c.WaterRequirementLitersPerSqm, c.FertilizationFrequencyDays, c.FertilizerType,
	)
	if err != nil {
		return nil, fmt.Errorf("save crop %s: %w", c.ID, err)
	}
	out := *c
	return &out, nil
}

func (s *Store) MarkIrrigated(ctx context.Context, parcelID string, at time.Time) error {
	return s.touchParcel(ctx, `UPDATE parcels SET last_irrigated_at = $1 WHERE id = $2`, parcelID, at)
}

func (s *Store) MarkFertilized(ctx context.Context, parcelID string, at time.Time) error {
	return s.touchParcel(ctx, `UPDATE parcels SET last_fertilized_at = $1 WHERE id = $2`, parcelID, at)
}

func (s *Store) touchParcel(ctx context.Context, sql, parcelID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, sql, at, parcelID)
	if err != nil {
		return fmt.Errorf("update parcel %s: %w", parcelID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: domain.KindParcel, ID: parcelID}
	}
	return nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
