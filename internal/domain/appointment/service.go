package appointment

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/doctor"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/notification"
)

// Doctors is the part of the doctor directory appointments depend on.
// *doctor.Service satisfies it.
type Doctors interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, updatedBy *uuid.UUID, fn doctor.CalendarFunc) error
}

// Patients resolves the contact details a status notification is sent to.
type Patients interface {
	ContactOf(ctx context.Context, id uuid.UUID) (name, email string, err error)
}

type StatusNotifier interface {
	NotifyAppointmentStatus(ctx context.Context, p notification.AppointmentStatus) error
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	doctors  Doctors
	patients Patients
	notifier StatusNotifier
	events   *events.Emitter
	logger   zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, doctors Doctors, patients Patients,
	notifier StatusNotifier, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		doctors:  doctors,
		patients: patients,
		notifier: notifier,
		events:   emitter,
		logger:   logger.With().Str("component", "appointment").Logger(),
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForCaller returns the appointment when the caller owns it or is staff.
func (s *Service) GetForCaller(ctx context.Context, id, callerID uuid.UUID, staff bool) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staff && a.PatientID != callerID {
		return nil, apperror.ErrForbidden.WithMessage("appointment belongs to another patient")
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListAll(ctx, status, limit, offset)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if patientID == uuid.Nil {
		return nil, 0, apperror.ErrUnauthenticated
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
