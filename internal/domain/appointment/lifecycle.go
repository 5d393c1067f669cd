package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/notification"
)

// Effect lists the side effects a transition triggers once it has committed.
type Effect struct {
	Notify  bool
	Publish bool
}

// transitions is the whole lifecycle. A pair missing from the table is not
// allowed.
var transitions = map[Status]map[Status]Effect{
	StatusPending: {
		StatusApproved:  {Notify: true, Publish: true},
		StatusRejected:  {Notify: true, Publish: true},
		StatusCompleted: {Publish: true},
	},
	StatusApproved: {
		StatusRejected:  {Notify: true, Publish: true},
		StatusCompleted: {Publish: true},
	},
}

// Transition returns the effects of moving from one status to another.
func Transition(from, to Status) (Effect, error) {
	effect, ok := transitions[from][to]
	if !ok {
		return Effect{}, ErrInvalidTransition.WithMessage("cannot move appointment from %s to %s", from, to)
	}
	return effect, nil
}

// UpdateStatus is the only writer of appointment status. Notification and
// event publishing happen after the status write commits; their failures are
// logged and reported through StatusChange.NotificationQueued, never returned.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, raw string) (*StatusChange, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	var (
		updated *Appointment
		prev    Status
		effect  Effect
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if effect, err = Transition(cur.Status, next); err != nil {
			return err
		}
		prev = cur.Status
		updated, err = s.repo.SetStatus(ctx, id, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("appointment status changed")

	change := &StatusChange{Appointment: updated, PreviousStatus: prev}
	if effect.Notify {
		change.NotificationQueued = s.notify(ctx, updated)
	}
	if effect.Publish {
		s.events.Emit(ctx, events.AppointmentStatusChanged, id.String(), map[string]interface{}{
			"appointment_id": id,
			"doctor_id":      updated.DoctorID,
			"patient_id":     updated.PatientID,
			"from":           prev,
			"to":             next,
		})
	}
	return change, nil
}

func (s *Service) notify(ctx context.Context, a *Appointment) bool {
	log := s.logger.With().Str("appointment_id", a.ID.String()).Logger()
	if s.notifier == nil {
		return false
	}

	d, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		log.Error().Err(err).Msg("notification skipped: doctor lookup failed")
		return false
	}
	name, email, err := s.patients.ContactOf(ctx, a.PatientID)
	if err != nil {
		log.Error().Err(err).Msg("notification skipped: patient lookup failed")
		return false
	}

	err = s.notifier.NotifyAppointmentStatus(ctx, notification.AppointmentStatus{
		AppointmentID:    a.ID.String(),
		DoctorName:       d.Name,
		PatientName:      name,
		RecipientEmail:   email,
		AppointmentTime:  strings.Replace(a.AppointmentTime, "T", " ", 1),
		Location:         a.Location,
		ConsultationType: a.ConsultationType,
		Status:           string(a.Status),
	})
	if err != nil {
		log.Error().Err(err).Msg("enqueue status notification")
		return false
	}
	return true
}
