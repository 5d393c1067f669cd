package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrRatingOutOfRange       = apperror.Validation("RatingOutOfRange", "rating must be between 1 and 5")
	ErrNoCompletedAppointment = apperror.NotFound("NoCompletedAppointment", "no completed appointment found to review")
	ErrDuplicateReview        = apperror.Conflict("DuplicateReview", "appointment has already been reviewed")
)

// Review maps to the reviews table. Reviews are immutable once created.
type Review struct {
	ID            uuid.UUID `db:"id" json:"id"`
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	Rating        int       `db:"rating" json:"rating"`
	Body          string    `db:"body" json:"review"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PendingReview is a completed appointment the patient has not reviewed yet.
type PendingReview struct {
	AppointmentID    uuid.UUID `json:"appointment_id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name"`
	AppointmentTime  string    `json:"appointment_time"`
	Location         string    `json:"location"`
	ConsultationType string    `json:"consultation_type"`
	Status           string    `json:"status"`
}

type AddInput struct {
	DoctorID      uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Rating        int
	Body          string
}

type addRequest struct {
	DoctorID      string `json:"doctor_id" validate:"required"`
	AppointmentID string `json:"appointment_id" validate:"required"`
	Rating        *int   `json:"rating" validate:"required"`
	Review        string `json:"review" validate:"required"`
}
