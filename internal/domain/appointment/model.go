package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
)

var (
	ErrAppointmentNotFound = apperror.NotFound("AppointmentNotFound", "appointment not found")
	ErrPatientNotFound     = apperror.NotFound("PatientNotFound", "patient not found")
	ErrDateUnavailable     = apperror.Conflict("DateUnavailable", "doctor has no availability on that date")
	ErrSlotUnavailable     = apperror.Conflict("SlotUnavailable", "slot is not available")
	ErrSlotAlreadyBooked   = apperror.Conflict("SlotAlreadyBooked", "slot is already booked")
	ErrInvalidStatus       = apperror.Validation("InvalidStatus", "status must be pending, approved, rejected or completed")
	ErrInvalidTransition   = apperror.Conflict("InvalidTransition", "status transition not allowed")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts the four known statuses, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return s, nil
	}
	return "", ErrInvalidStatus.WithMessage("unknown status %q", raw)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Appointment maps to the appointments table. AppointmentTime is the
// composite "YYYY-MM-DDTHH:MM" key the booking was made under.
type Appointment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	DoctorID         uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	AppointmentTime  string    `db:"appointment_time" json:"appointment_time"`
	Location         string    `db:"location" json:"location"`
	ConsultationType string    `db:"consultation_type" json:"consultation_type"`
	Status           Status    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// BookingInput is what the booking engine needs from a request plus the
// authenticated patient.
type BookingInput struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	Date             string
	Shift            string
	SlotTime         string
	Location         string
	ConsultationType string
}

type slotRequest struct {
	Date     string `json:"date" validate:"required"`
	Shift    string `json:"shift" validate:"required"`
	SlotTime string `json:"slot_time" validate:"required"`
}

type bookRequest struct {
	DoctorID         string      `json:"doctor_id" validate:"required"`
	AppointmentTime  slotRequest `json:"appointment_time"`
	Location         string      `json:"location" validate:"required"`
	ConsultationType string      `json:"consultation_type" validate:"required"`
}

type statusRequest struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// StatusChange reports the outcome of a lifecycle transition.
type StatusChange struct {
	Appointment        *Appointment `json:"appointment"`
	PreviousStatus     Status       `json:"previous_status"`
	NotificationQueued bool         `json:"notification_queued"`
}
