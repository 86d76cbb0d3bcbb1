// Package fertilization runs the reduced fertilization lifecycle: the due scan
// marks tasks PENDING, and users complete or cancel them. Completion chains the
// next occurrence.
package fertilization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/clock"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/lock"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// Store is the persistence the service needs.
type Store interface {
	store.FertilizationStore
	store.ParcelStore
}

// Chainer creates the occurrence that follows a completed fertilization.
type Chainer interface {
	ChainFertilization(ctx context.Context, parcelID string, completedAt time.Time) (*domain.Fertilization, error)
}

// Service owns every mutation of fertilization records.
type Service struct {
	store    Store
	chainer  Chainer
	notifier notify.Emitter
	locker   lock.Locker
	clock    clock.Clock
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c clock.Clock) Option       { return func(s *Service) { s.clock = c } }
func WithLocker(l lock.Locker) Option      { return func(s *Service) { s.locker = l } }
func WithNotifier(n notify.Emitter) Option { return func(s *Service) { s.notifier = n } }
func WithLogger(l *slog.Logger) Option     { return func(s *Service) { s.logger = l } }

// NewService constructs a Service. chainer may be nil to disable chaining.
func NewService(st Store, chainer Chainer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		chainer:  chainer,
		notifier: notify.Discard{},
		locker:   lock.NewKeyed(),
		clock:    clock.System{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the fertilization with the given id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Fertilization, error) {
	return s.store.GetFertilization(ctx, id)
}

// ListByParcel returns the parcel's fertilizations, oldest first.
func (s *Service) ListByParcel(ctx context.Context, parcelID string) ([]*domain.Fertilization, error) {
	if _, err := s.store.GetParcel(ctx, parcelID); err != nil {
		return nil, err
	}
	return s.store.ListFertilizations(ctx, parcelID)
}

// ScanDue marks every SCHEDULED fertilization due at or before now as PENDING.
// Per-task errors are logged and joined.
func (s *Service) ScanDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.FindDueFertilizations(ctx, []domain.FertilizationStatus{domain.FertilizationScheduled}, now)
	if err != nil {
		return 0, fmt.Errorf("find due fertilizations: %w", err)
	}
	if len(due) == 0 {
		s.logger.Debug("no fertilizations due")
		return 0, nil
	}

	var (
		marked int
		errs   []error
	)
	for _, f := range due {
		if _, err := s.MarkPending(ctx, f.ID); err != nil {
			var invalid *domain.InvalidStateTransitionError
			if errors.As(err, &invalid) {
				// Completed or cancelled since the query ran.
				continue
			}
			s.logger.Error("failed to mark fertilization pending",
				slog.String("task_id", f.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		marked++
	}
	return marked, errors.Join(errs...)
}

// MarkPending moves a SCHEDULED fertilization to PENDING and emits the due
// notification.
func (s *Service) MarkPending(ctx context.Context, id string) (*domain.Fertilization, error) {
	out, err := s.transition(ctx, id, domain.EventPend, func(*domain.Fertilization, time.Time) {})
	if err != nil {
		return nil, err
	}
	s.logger.Info("fertilization due",
		slog.String("task_id", id),
		slog.String("parcel_id", out.ParcelID),
	)
	s.emit(ctx, notify.FertilizationDue, out, "Fertilization is due: "+out.FertilizerType)
	return out, nil
}

// Complete records the fertilization as done, stamps the parcel and chains the
// next occurrence. Chaining failures are logged; the completion stands.
func (s *Service) Complete(ctx context.Context, id, notes string) (*domain.Fertilization, error) {
	out, err := s.transition(ctx, id, domain.EventComplete, func(f *domain.Fertilization, now time.Time) {
		f.CompletedAt = &now
		if notes != "" {
			f.Notes = notes
		}
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With(slog.String("task_id", id), slog.String("parcel_id", out.ParcelID))
	if err := s.store.MarkFertilized(ctx, out.ParcelID, *out.CompletedAt); err != nil {
		log.Error("failed to update parcel last fertilized time", slog.String("error", err.Error()))
	}
	log.Info("fertilization completed")
	s.emit(ctx, notify.FertilizationCompleted, out, out.Notes)

	if s.chainer != nil {
		next, err := s.chainer.ChainFertilization(ctx, out.ParcelID, *out.CompletedAt)
		switch {
		case err != nil:
			log.Error("failed to schedule next fertilization", slog.String("error", err.Error()))
		case next != nil:
			log.Info("next fertilization scheduled",
				slog.String("next_id", next.ID),
				slog.Time("scheduled_at", next.ScheduledAt),
			)
		}
	}
	return out, nil
}

// Cancel abandons a SCHEDULED or PENDING fertilization. No occurrence is chained.
func (s *Service) Cancel(ctx context.Context, id, notes string) (*domain.Fertilization, error) {
	out, err := s.transition(ctx, id, domain.EventCancel, func(f *domain.Fertilization, _ time.Time) {
		if notes != "" {
			f.Notes = notes
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("fertilization cancelled", slog.String("task_id", id))
	s.emit(ctx, notify.FertilizationCancelled, out, out.Notes)
	return out, nil
}

func (s *Service) transition(ctx context.Context, id, event string, mutate func(*domain.Fertilization, time.Time)) (*domain.Fertilization, error) {
	unlock, err := s.locker.Lock(ctx, "fertilization:"+id)
	if err != nil {
		return nil, fmt.Errorf("lock fertilization %s: %w", id, err)
	}
	defer unlock()

	f, err := s.store.GetFertilization(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.Fire(event); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	mutate(f, now)
	f.UpdatedAt = now
	saved, err := s.store.SaveFertilization(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("save fertilization: %w", err)
	}
	telemetry.FertilizationTransitions.WithLabelValues(string(saved.Status)).Inc()
	return saved, nil
}

func (s *Service) emit(ctx context.Context, kind notify.EventKind, f *domain.Fertilization, details string) {
	name := ""
	if p, err := s.store.GetParcel(ctx, f.ParcelID); err == nil {
		name = p.Name
	}
	s.notifier.Emit(ctx, notify.ForFertilization(kind, f, name, details, s.clock.Now()))
}
