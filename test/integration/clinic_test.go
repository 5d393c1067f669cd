//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/availability"
	"github.com/clinic/clinic/internal/domain/doctor"
	"github.com/clinic/clinic/internal/domain/review"
	"github.com/clinic/clinic/internal/platform/notification"
)

func TestBooking_RemovesSlot(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	d := s.doctor(t, morning("09:00", "09:30"))
	p := s.patient(t, "asha")

	a, err := s.book(ctx, d.ID, p.ID, "09:00")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.AppointmentTime != "2024-08-10T09:00" || a.Status != appointment.StatusPending {
		t.Errorf("unexpected appointment: %+v", a)
	}

	got, err := s.doctors.GetDoctor(ctx, d.ID)
	if err != nil {
		t.Fatalf("get doctor: %v", err)
	}
	slots := got.AvailableTimes["2024-08-10"]["morning"]
	if len(slots) != 1 || slots[0] != "09:30" {
		t.Errorf("expected only 09:30 left, got %v", slots)
	}

	if _, err := s.book(ctx, d.ID, p.ID, "09:00"); !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Errorf("expected SlotUnavailable for a taken slot, got %v", err)
	}
}

// Two service graphs share nothing but the database, like two server
// processes. Only the row lock keeps them from double booking.
func TestBooking_ConcurrentAcrossInstances(t *testing.T) {
	ctx := context.Background()
	first, second := newStack(t), newStack(t)
	d := first.doctor(t, morning("10:00"))

	const n = 10
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = first.patient(t, "racer").ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := first
			if i%2 == 1 {
				s = second
			}
			_, err := s.book(ctx, d.ID, patients[i], "10:00")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			failures = append(failures, err)
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one booking, got %d", wins)
	}
	for _, err := range failures {
		if !errors.Is(err, appointment.ErrSlotUnavailable) &&
			!errors.Is(err, appointment.ErrDateUnavailable) &&
			!errors.Is(err, appointment.ErrSlotAlreadyBooked) {
			t.Errorf("unexpected failure: %v", err)
		}
	}

	var count int
	if err := globalPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE doctor_id = $1`, d.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected one stored appointment, got %d", count)
	}
}

// failingCalendarRepo stores doctors normally but refuses to write calendars.
type failingCalendarRepo struct {
	doctor.Repository
}

var errCalendarWrite = errors.New("calendar write failed")

func (failingCalendarRepo) SaveAvailability(context.Context, uuid.UUID, availability.Calendar, *uuid.UUID) error {
	return errCalendarWrite
}

func TestBooking_CalendarWriteFailureRollsBackAppointment(t *testing.T) {
	ctx := context.Background()
	seed := newStack(t)
	d := seed.doctor(t, morning("16:00"))
	p := seed.patient(t, "nisha")

	s := newStackWithDoctors(t, failingCalendarRepo{Repository: doctor.NewRepoPG(globalPool)})
	if _, err := s.book(ctx, d.ID, p.ID, "16:00"); !errors.Is(err, errCalendarWrite) {
		t.Fatalf("expected the calendar write error, got %v", err)
	}

	var count int
	if err := globalPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE doctor_id = $1`, d.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected the appointment insert to be rolled back, found %d rows", count)
	}

	got, err := seed.doctors.GetDoctor(ctx, d.ID)
	if err != nil {
		t.Fatalf("get doctor: %v", err)
	}
	if !availability.IsSlotAvailable(got.AvailableTimes, "2024-08-10", "16:00") {
		t.Error("slot should still be offered after the failed booking")
	}

	if _, err := seed.book(ctx, d.ID, p.ID, "16:00"); err != nil {
		t.Errorf("slot should be bookable after the rollback: %v", err)
	}
}

func TestActiveSlotIndex(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	d := s.doctor(t, morning("11:00"))
	p := s.patient(t, "ravi")
	repo := appointment.NewRepoPG(globalPool)

	newAppt := func() *appointment.Appointment {
		return &appointment.Appointment{
			DoctorID: d.ID, PatientID: p.ID, AppointmentTime: "2024-08-10T11:00",
			Location: "Pune", ConsultationType: "video", Status: appointment.StatusPending,
		}
	}

	a := newAppt()
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, newAppt()); !errors.Is(err, appointment.ErrSlotAlreadyBooked) {
		t.Fatalf("expected SlotAlreadyBooked, got %v", err)
	}

	if _, err := repo.SetStatus(ctx, a.ID, appointment.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := repo.Create(ctx, newAppt()); err != nil {
		t.Errorf("a rejected appointment should free the slot, got %v", err)
	}
}

func TestStatusChange_DeliveredThroughOutbox(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	d := s.doctor(t, morning("12:00"))
	p := s.patient(t, "meera")

	a, err := s.book(ctx, d.ID, p.ID, "12:00")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	change, err := s.appointments.UpdateStatus(ctx, a.ID, "approved")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if !change.NotificationQueued || change.PreviousStatus != appointment.StatusPending {
		t.Errorf("unexpected change: %+v", change)
	}

	sender := &notification.MockEmailSender{}
	dispatcher := notification.NewDispatcher(s.outbox, s.templates, sender, notification.DefaultDispatcherConfig(), zerolog.Nop())
	if _, err := dispatcher.DispatchPending(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var delivered *notification.EmailCall
	for _, call := range sender.Calls() {
		if call.To == p.Email {
			c := call
			delivered = &c
		}
	}
	if delivered == nil {
		t.Fatal("expected an email to the patient")
	}
	if delivered.Subject != "Your Appointment Status" {
		t.Errorf("unexpected subject %q", delivered.Subject)
	}

	var status string
	if err := globalPool.QueryRow(ctx,
		`SELECT status FROM notification_outbox WHERE recipient = $1`, p.Email).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != notification.StatusSent {
		t.Errorf("expected outbox row sent, got %s", status)
	}
}

func TestReviews_RecomputeRatingAndPending(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	d := s.doctor(t, morning("13:00", "13:30"))
	p := s.patient(t, "kiran")

	var completed []uuid.UUID
	for _, slot := range []string{"13:00", "13:30"} {
		a, err := s.book(ctx, d.ID, p.ID, slot)
		if err != nil {
			t.Fatalf("book %s: %v", slot, err)
		}
		if _, err := s.appointments.UpdateStatus(ctx, a.ID, "completed"); err != nil {
			t.Fatalf("complete: %v", err)
		}
		completed = append(completed, a.ID)
	}

	pending, err := s.reviews.PendingReviews(ctx, p.ID, &d.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending reviews, got %d", len(pending))
	}

	for i, rating := range []int{5, 4} {
		if _, err := s.reviews.AddReview(ctx, review.AddInput{
			DoctorID: d.ID, AppointmentID: completed[i], PatientID: p.ID, Rating: rating, Body: "thorough",
		}); err != nil {
			t.Fatalf("add review: %v", err)
		}
	}

	got, _ := s.doctors.GetDoctor(ctx, d.ID)
	if got.Rating != 4.5 {
		t.Errorf("expected rating 4.5, got %v", got.Rating)
	}

	_, err = s.reviews.AddReview(ctx, review.AddInput{
		DoctorID: d.ID, AppointmentID: completed[0], PatientID: p.ID, Rating: 1, Body: "again",
	})
	if !errors.Is(err, review.ErrDuplicateReview) {
		t.Errorf("expected DuplicateReview, got %v", err)
	}

	pending, _ = s.reviews.PendingReviews(ctx, p.ID, nil)
	if len(pending) != 0 {
		t.Errorf("expected no pending reviews, got %d", len(pending))
	}
	history, _ := s.reviews.ReviewHistory(ctx, p.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 reviews in history, got %d", len(history))
	}
}

func TestRemoveDoctor_WithAppointments(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	d := s.doctor(t, morning("14:00"))
	p := s.patient(t, "dev")
	if _, err := s.book(ctx, d.ID, p.ID, "14:00"); err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := s.doctors.RemoveDoctor(ctx, d.ID); !errors.Is(err, doctor.ErrDoctorHasAppointments) {
		t.Fatalf("expected DoctorHasAppointments, got %v", err)
	}

	empty := s.doctor(t, morning("15:00"))
	if err := s.doctors.RemoveDoctor(ctx, empty.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.doctors.GetDoctor(ctx, empty.ID); !errors.Is(err, doctor.ErrDoctorNotFound) {
		t.Errorf("expected DoctorNotFound after removal, got %v", err)
	}
}
