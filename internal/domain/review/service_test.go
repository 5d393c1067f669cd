package review

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/events"
)

// -- Mock Review Repository --

type mockReviewRepo struct {
	mu      sync.Mutex
	reviews map[uuid.UUID]*Review
	// appts backs PendingForPatient the way the SQL join does.
	appts map[uuid.UUID]*appointment.Appointment
}

func newMockReviewRepo(appts map[uuid.UUID]*appointment.Appointment) *mockReviewRepo {
	return &mockReviewRepo{reviews: make(map[uuid.UUID]*Review), appts: appts}
}

func (m *mockReviewRepo) Create(_ context.Context, rv *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.reviews {
		if x.AppointmentID == rv.AppointmentID {
			return ErrDuplicateReview
		}
	}
	rv.ID = uuid.New()
	rv.CreatedAt = time.Now().Add(time.Duration(len(m.reviews)) * time.Second)
	cp := *rv
	m.reviews[rv.ID] = &cp
	return nil
}

func (m *mockReviewRepo) ExistsForAppointment(_ context.Context, appointmentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.reviews {
		if x.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockReviewRepo) RatingsForDoctor(_ context.Context, doctorID uuid.UUID) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, x := range m.reviews {
		if x.DoctorID == doctorID {
			out = append(out, x.Rating)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Review
	for _, x := range m.reviews {
		if x.PatientID == patientID {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockReviewRepo) PendingForPatient(_ context.Context, patientID uuid.UUID, doctorID *uuid.UUID) ([]*PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reviewed := make(map[uuid.UUID]bool)
	for _, x := range m.reviews {
		reviewed[x.AppointmentID] = true
	}
	var out []*PendingReview
	for _, a := range m.appts {
		if a.PatientID != patientID || a.Status != appointment.StatusCompleted || reviewed[a.ID] {
			continue
		}
		if doctorID != nil && a.DoctorID != *doctorID {
			continue
		}
		out = append(out, &PendingReview{AppointmentID: a.ID, DoctorID: a.DoctorID, AppointmentTime: a.AppointmentTime, Status: string(a.Status)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentTime > out[j].AppointmentTime })
	return out, nil
}

type fakeAppointments map[uuid.UUID]*appointment.Appointment

func (f fakeAppointments) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := f[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

type recordingSink struct {
	ratings map[uuid.UUID][]float64
	err     error
}

func (r *recordingSink) SetRating(_ context.Context, doctorID uuid.UUID, rating float64) error {
	if r.err != nil {
		return r.err
	}
	r.ratings[doctorID] = append(r.ratings[doctorID], rating)
	return nil
}

type testEnv struct {
	svc   *Service
	appts fakeAppointments
	sink  *recordingSink
	pub   *events.MemoryPublisher
}

func newTestEnv() *testEnv {
	appts := fakeAppointments{}
	sink := &recordingSink{ratings: make(map[uuid.UUID][]float64)}
	pub := &events.MemoryPublisher{}
	svc := NewService(newMockReviewRepo(appts), appts, sink, events.NewEmitter(pub, zerolog.Nop()), zerolog.Nop())
	return &testEnv{svc: svc, appts: appts, sink: sink, pub: pub}
}

func (env *testEnv) appointment(doctorID, patientID uuid.UUID, status appointment.Status, at string) *appointment.Appointment {
	a := &appointment.Appointment{
		ID: uuid.New(), DoctorID: doctorID, PatientID: patientID,
		AppointmentTime: at, Status: status,
	}
	env.appts[a.ID] = a
	return a
}

func input(a *appointment.Appointment, rating int) AddInput {
	return AddInput{
		DoctorID:      a.DoctorID,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		Rating:        rating,
		Body:          "Very attentive",
	}
}

func TestAddReview(t *testing.T) {
	env := newTestEnv()
	a := env.appointment(uuid.New(), uuid.New(), appointment.StatusCompleted, "2025-01-10T09:00")

	rv, err := env.svc.AddReview(context.Background(), input(a, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rv.ID == uuid.Nil || rv.Rating != 5 || rv.Body != "Very attentive" {
		t.Errorf("unexpected review: %+v", rv)
	}
	if got := env.sink.ratings[a.DoctorID]; len(got) != 1 || got[0] != 5 {
		t.Errorf("expected rating 5 stored, got %v", got)
	}
	if len(env.pub.OfType(events.ReviewCreated)) != 1 {
		t.Error("expected a review created event")
	}
}

func TestAddReview_MeanRecomputed(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	for i, rating := range []int{4, 5, 3} {
		a := env.appointment(doctorID, uuid.New(), appointment.StatusCompleted, "2025-01-1"+string(rune('0'+i))+"T09:00")
		if _, err := env.svc.AddReview(context.Background(), input(a, rating)); err != nil {
			t.Fatalf("review %d: %v", i, err)
		}
	}
	got := env.sink.ratings[doctorID]
	want := []float64{4, 4.5, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %d recomputations, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("after review %d: expected %v, got %v", i+1, want[i], got[i])
		}
	}
}

func TestAddReview_RequiresCompleted(t *testing.T) {
	env := newTestEnv()
	for _, status := range []appointment.Status{appointment.StatusPending, appointment.StatusApproved, appointment.StatusRejected} {
		a := env.appointment(uuid.New(), uuid.New(), status, "2025-01-10T09:00")
		if _, err := env.svc.AddReview(context.Background(), input(a, 4)); !errors.Is(err, ErrNoCompletedAppointment) {
			t.Errorf("%s: expected NoCompletedAppointment, got %v", status, err)
		}
	}
}

func TestAddReview_StrictMatch(t *testing.T) {
	env := newTestEnv()
	a := env.appointment(uuid.New(), uuid.New(), appointment.StatusCompleted, "2025-01-10T09:00")

	other := input(a, 4)
	other.PatientID = uuid.New()
	if _, err := env.svc.AddReview(context.Background(), other); !errors.Is(err, ErrNoCompletedAppointment) {
		t.Errorf("another patient: expected NoCompletedAppointment, got %v", err)
	}

	wrongDoctor := input(a, 4)
	wrongDoctor.DoctorID = uuid.New()
	if _, err := env.svc.AddReview(context.Background(), wrongDoctor); !errors.Is(err, ErrNoCompletedAppointment) {
		t.Errorf("another doctor: expected NoCompletedAppointment, got %v", err)
	}

	missing := input(a, 4)
	missing.AppointmentID = uuid.New()
	if _, err := env.svc.AddReview(context.Background(), missing); !errors.Is(err, ErrNoCompletedAppointment) {
		t.Errorf("unknown appointment: expected NoCompletedAppointment, got %v", err)
	}
}

func TestAddReview_Duplicate(t *testing.T) {
	env := newTestEnv()
	a := env.appointment(uuid.New(), uuid.New(), appointment.StatusCompleted, "2025-01-10T09:00")

	if _, err := env.svc.AddReview(context.Background(), input(a, 4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.AddReview(context.Background(), input(a, 2)); !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("expected DuplicateReview, got %v", err)
	}
	if got := env.sink.ratings[a.DoctorID]; len(got) != 1 {
		t.Errorf("rejected review must not touch the rating, got %v", got)
	}
}

func TestAddReview_Validation(t *testing.T) {
	env := newTestEnv()
	a := env.appointment(uuid.New(), uuid.New(), appointment.StatusCompleted, "2025-01-10T09:00")

	for _, r := range []int{0, 6, -1} {
		if _, err := env.svc.AddReview(context.Background(), input(a, r)); !errors.Is(err, ErrRatingOutOfRange) {
			t.Errorf("rating %d: expected RatingOutOfRange, got %v", r, err)
		}
	}

	blank := input(a, 4)
	blank.Body = "   "
	if _, err := env.svc.AddReview(context.Background(), blank); !errors.Is(err, apperror.ErrMissingField) {
		t.Errorf("expected MissingField for body, got %v", err)
	}

	anon := input(a, 4)
	anon.PatientID = uuid.Nil
	if _, err := env.svc.AddReview(context.Background(), anon); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestAddReview_RatingSinkFailureIsSwallowed(t *testing.T) {
	env := newTestEnv()
	env.sink.err = errors.New("db down")
	a := env.appointment(uuid.New(), uuid.New(), appointment.StatusCompleted, "2025-01-10T09:00")

	if _, err := env.svc.AddReview(context.Background(), input(a, 3)); err != nil {
		t.Fatalf("rating failure must not fail the review: %v", err)
	}
}

func TestPendingReviewsAndHistory(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	patient := uuid.New()
	docA, docB := uuid.New(), uuid.New()

	done1 := env.appointment(docA, patient, appointment.StatusCompleted, "2025-01-10T09:00")
	env.appointment(docB, patient, appointment.StatusCompleted, "2025-01-12T09:00")
	env.appointment(docA, patient, appointment.StatusApproved, "2025-01-14T09:00")
	env.appointment(docA, uuid.New(), appointment.StatusCompleted, "2025-01-15T09:00")

	pending, err := env.svc.PendingReviews(ctx, patient, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 || pending[0].AppointmentTime != "2025-01-12T09:00" {
		t.Errorf("expected 2 pending, newest first, got %+v", pending)
	}

	onlyA, _ := env.svc.PendingReviews(ctx, patient, &docA)
	if len(onlyA) != 1 || onlyA[0].AppointmentID != done1.ID {
		t.Errorf("expected only doctor A's completed appointment, got %+v", onlyA)
	}

	if _, err := env.svc.AddReview(ctx, input(done1, 5)); err != nil {
		t.Fatalf("add review: %v", err)
	}
	pending, _ = env.svc.PendingReviews(ctx, patient, nil)
	if len(pending) != 1 {
		t.Errorf("reviewed appointment should leave the pending list, got %d", len(pending))
	}

	history, err := env.svc.ReviewHistory(ctx, patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].AppointmentID != done1.ID {
		t.Errorf("unexpected history: %+v", history)
	}
}
