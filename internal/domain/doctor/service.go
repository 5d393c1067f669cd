package doctor

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/availability"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
)

const (
	TopRatedLimit = 10
	topRatedKey   = "doctors:top-rated"
)

// CalendarFunc transforms a locked calendar. It runs inside the transaction
// that will persist its result, so writes it makes through ctx commit or roll
// back together with the calendar.
type CalendarFunc func(ctx context.Context, cal availability.Calendar) (availability.Calendar, error)

type Service struct {
	repo     Repository
	tx       db.Transactor
	locks    *availability.Locks
	cache    cache.Store
	cacheTTL time.Duration
	events   *events.Emitter
	logger   zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, store cache.Store, cacheTTL time.Duration, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		locks:    availability.NewLocks(),
		cache:    store,
		cacheTTL: cacheTTL,
		events:   emitter,
		logger:   logger.With().Str("component", "doctor").Logger(),
	}
}

func (s *Service) AddDoctor(ctx context.Context, in CreateInput, adminID uuid.UUID) (*Doctor, error) {
	required := map[string]string{
		"name": in.Name, "specialty": in.Specialty, "degree": in.Degree,
		"location": in.Location, "gender": in.Gender,
	}
	for _, field := range []string{"name", "specialty", "degree", "location", "gender"} {
		if strings.TrimSpace(required[field]) == "" {
			return nil, apperror.MissingField(field)
		}
	}
	if in.Experience == nil {
		return nil, apperror.MissingField("experience")
	}
	if *in.Experience < 0 {
		return nil, ErrInvalidFilter.WithMessage("experience must not be negative")
	}
	if in.AvailableTimes == nil {
		return nil, apperror.MissingField("available_times")
	}
	if err := availability.Validate(in.AvailableTimes); err != nil {
		return nil, err
	}

	d := &Doctor{
		Name:           strings.TrimSpace(in.Name),
		Specialty:      strings.TrimSpace(in.Specialty),
		Experience:     *in.Experience,
		Degree:         strings.TrimSpace(in.Degree),
		Location:       strings.TrimSpace(in.Location),
		Gender:         strings.TrimSpace(in.Gender),
		AvailableTimes: in.AvailableTimes.Clone(),
		CreatedBy:      actor(adminID),
		UpdatedBy:      actor(adminID),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in UpdateInput, adminID uuid.UUID) (*Doctor, error) {
	if in.Experience != nil && *in.Experience < 0 {
		return nil, ErrInvalidFilter.WithMessage("experience must not be negative")
	}
	if in.AvailableTimes != nil {
		if err := availability.Validate(in.AvailableTimes); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(id.String())
	defer unlock()

	var out *Doctor
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		in.apply(d)
		d.UpdatedBy = actor(adminID)
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *Service) RemoveDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// UpdateSlots merges patch into the doctor's calendar at the date level.
func (s *Service) UpdateSlots(ctx context.Context, id uuid.UUID, patch availability.Calendar, adminID uuid.UUID) (*Doctor, error) {
	if len(patch) == 0 {
		return nil, apperror.MissingField("available_times")
	}
	if err := availability.ValidatePatch(patch); err != nil {
		return nil, err
	}

	err := s.UpdateAvailability(ctx, id, actor(adminID), func(_ context.Context, cal availability.Calendar) (availability.Calendar, error) {
		return availability.Merge(cal, patch), nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateAvailability runs fn against the doctor's calendar while holding both
// the in-process doctor lock and the row lock, then stores the result. The
// transaction commits before the in-process lock is released.
func (s *Service) UpdateAvailability(ctx context.Context, id uuid.UUID, updatedBy *uuid.UUID, fn CalendarFunc) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cal, err := s.repo.LockAvailability(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(ctx, cal)
		if err != nil {
			return err
		}
		return s.repo.SaveAvailability(ctx, id, next, updatedBy)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, p SearchParams, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.Search(ctx, p, limit, offset)
}

// TopRated returns the highest-rated doctors, served from the cache when
// possible.
func (s *Service) TopRated(ctx context.Context) ([]*Doctor, error) {
	var cached []*Doctor
	if s.cache != nil {
		found, err := s.cache.Get(ctx, topRatedKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("read top-rated cache")
		} else if found {
			return cached, nil
		}
	}

	items, err := s.repo.TopRated(ctx, TopRatedLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Doctor{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, topRatedKey, items, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("write top-rated cache")
		}
	}
	return items, nil
}

// SetRating stores an aggregate rating rounded to two decimals.
func (s *Service) SetRating(ctx context.Context, id uuid.UUID, rating float64) error {
	rating = math.Round(rating*100) / 100
	if err := s.repo.SetRating(ctx, id, rating); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.events.Emit(ctx, events.DoctorRatingUpdated, id.String(), map[string]interface{}{
		"doctor_id": id,
		"rating":    rating,
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, topRatedKey); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate top-rated cache")
	}
}

func actor(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
