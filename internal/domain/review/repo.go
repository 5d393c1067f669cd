package review

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the review. A second review for the same appointment
	// fails with ErrDuplicateReview.
	Create(ctx context.Context, r *Review) error
	ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	// RatingsForDoctor returns every rating the doctor has received.
	RatingsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Review, error)
	// PendingForPatient lists the patient's completed, unreviewed
	// appointments, optionally narrowed to one doctor, latest first.
	PendingForPatient(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) ([]*PendingReview, error)
}
