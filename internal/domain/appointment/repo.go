package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a pending appointment. A second live appointment for the
	// same doctor and composite time fails with ErrSlotAlreadyBooked.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ExistsActive reports whether a non-rejected appointment holds the
	// doctor's composite time.
	ExistsActive(ctx context.Context, doctorID uuid.UUID, appointmentTime string) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)
	// ListAll returns pending appointments first, then the rest by time.
	ListAll(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error)
	// ListByPatient returns the patient's appointments, latest time first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}
