package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/availability"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/events"
)

// Book reserves a slot for the patient. The availability check, the
// double-booking check, the insert and the calendar write run under the
// doctor's calendar lock in one transaction.
//
// Availability is checked across every shift of the date. The slot is then
// removed from the requested shift, or from whichever shift lists it when the
// requested one does not.
func (s *Service) Book(ctx context.Context, in BookingInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperror.ErrUnauthenticated
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperror.MissingField("doctor_id")
	}
	in.Date = strings.TrimSpace(in.Date)
	in.Shift = strings.TrimSpace(in.Shift)
	in.SlotTime = strings.TrimSpace(in.SlotTime)
	for _, f := range []struct{ name, value string }{
		{"appointment_time.date", in.Date},
		{"appointment_time.shift", in.Shift},
		{"appointment_time.slot_time", in.SlotTime},
		{"location", in.Location},
		{"consultation_type", in.ConsultationType},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, apperror.MissingField(f.name)
		}
	}

	composite := availability.CompositeTime(in.Date, in.SlotTime)
	var created *Appointment

	err := s.doctors.UpdateAvailability(ctx, in.DoctorID, nil, func(ctx context.Context, cal availability.Calendar) (availability.Calendar, error) {
		if !cal.HasDate(in.Date) {
			return nil, ErrDateUnavailable.WithMessage("doctor has no availability on %s", in.Date)
		}
		if !availability.IsSlotAvailable(cal, in.Date, in.SlotTime) {
			return nil, ErrSlotUnavailable.WithMessage("slot %s on %s is not available", in.SlotTime, in.Date)
		}

		taken, err := s.repo.ExistsActive(ctx, in.DoctorID, composite)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlotAlreadyBooked.WithMessage("slot %s is already booked", composite)
		}

		a := &Appointment{
			DoctorID:         in.DoctorID,
			PatientID:        in.PatientID,
			AppointmentTime:  composite,
			Location:         strings.TrimSpace(in.Location),
			ConsultationType: strings.TrimSpace(in.ConsultationType),
			Status:           StatusPending,
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return nil, err
		}
		created = a

		shift := in.Shift
		if !lo.Contains(cal[in.Date][shift], in.SlotTime) {
			shift, _ = availability.ShiftOf(cal, in.Date, in.SlotTime)
		}
		return availability.RemoveSlot(cal, in.Date, shift, in.SlotTime), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("appointment_time", created.AppointmentTime).
		Msg("appointment booked")
	s.events.Emit(ctx, events.AppointmentBooked, created.ID.String(), created)
	return created, nil
}
