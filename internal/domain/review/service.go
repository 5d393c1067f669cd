package review

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/events"
)

type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// RatingSink stores a doctor's aggregate rating. *doctor.Service satisfies it.
type RatingSink interface {
	SetRating(ctx context.Context, doctorID uuid.UUID, rating float64) error
}

type Service struct {
	repo         Repository
	appointments Appointments
	ratings      RatingSink
	events       *events.Emitter
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments Appointments, ratings RatingSink, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		ratings:      ratings,
		events:       emitter,
		logger:       logger.With().Str("component", "review").Logger(),
	}
}

// AddReview records a review for a completed appointment that belongs to the
// patient and the doctor named, then recomputes the doctor's rating.
func (s *Service) AddReview(ctx context.Context, in AddInput) (*Review, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperror.ErrUnauthenticated
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperror.MissingField("doctor_id")
	}
	if in.AppointmentID == uuid.Nil {
		return nil, apperror.MissingField("appointment_id")
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperror.MissingField("review")
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return nil, ErrRatingOutOfRange.WithMessage("rating must be between %d and %d, got %d", MinRating, MaxRating, in.Rating)
	}

	a, err := s.appointments.GetAppointment(ctx, in.AppointmentID)
	if errors.Is(err, appointment.ErrAppointmentNotFound) {
		return nil, ErrNoCompletedAppointment
	}
	if err != nil {
		return nil, err
	}
	if a.DoctorID != in.DoctorID || a.PatientID != in.PatientID || a.Status != appointment.StatusCompleted {
		return nil, ErrNoCompletedAppointment
	}

	exists, err := s.repo.ExistsForAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateReview
	}

	rv := &Review{
		DoctorID:      in.DoctorID,
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		Rating:        in.Rating,
		Body:          body,
	}
	if err := s.repo.Create(ctx, rv); err != nil {
		return nil, err
	}

	s.refreshRating(ctx, in.DoctorID)
	s.events.Emit(ctx, events.ReviewCreated, rv.ID.String(), rv)
	return rv, nil
}

// refreshRating recomputes the doctor's mean rating from every review. A
// failure leaves the previous rating in place.
func (s *Service) refreshRating(ctx context.Context, doctorID uuid.UUID) {
	log := s.logger.With().Str("doctor_id", doctorID.String()).Logger()

	ratings, err := s.repo.RatingsForDoctor(ctx, doctorID)
	if err != nil {
		log.Error().Err(err).Msg("read ratings")
		return
	}
	if len(ratings) == 0 {
		return
	}
	mean := float64(lo.Sum(ratings)) / float64(len(ratings))
	if err := s.ratings.SetRating(ctx, doctorID, mean); err != nil {
		log.Error().Err(err).Float64("rating", mean).Msg("store doctor rating")
	}
}

func (s *Service) PendingReviews(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) ([]*PendingReview, error) {
	if patientID == uuid.Nil {
		return nil, apperror.ErrUnauthenticated
	}
	return s.repo.PendingForPatient(ctx, patientID, doctorID)
}

func (s *Service) ReviewHistory(ctx context.Context, patientID uuid.UUID) ([]*Review, error) {
	if patientID == uuid.Nil {
		return nil, apperror.ErrUnauthenticated
	}
	return s.repo.ListByPatient(ctx, patientID)
}
