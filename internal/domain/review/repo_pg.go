package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

const uniqueAppointmentConstraint = "reviews_appointment_id_key"

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &reviewRepoPG{pool: pool} }

func (r *reviewRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reviewCols = `id, doctor_id, patient_id, appointment_id, rating, body, created_at`

func (r *reviewRepoPG) scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.DoctorID, &rv.PatientID, &rv.AppointmentID, &rv.Rating, &rv.Body, &rv.CreatedAt)
	return &rv, err
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reviews (id, doctor_id, patient_id, appointment_id, rating, body)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		rv.ID, rv.DoctorID, rv.PatientID, rv.AppointmentID, rv.Rating, rv.Body).Scan(&rv.CreatedAt)
	if db.IsConstraintViolation(err, db.UniqueViolation, uniqueAppointmentConstraint) {
		return ErrDuplicateReview
	}
	if db.IsConstraintViolation(err, db.CheckViolation, "") {
		return ErrRatingOutOfRange
	}
	if err != nil {
		return apperror.Persistence("insert review", err)
	}
	return nil
}

func (r *reviewRepoPG) ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE appointment_id = $1)`, appointmentID).Scan(&exists)
	if err != nil {
		return false, apperror.Persistence("check review", err)
	}
	return exists, nil
}

func (r *reviewRepoPG) RatingsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT rating FROM reviews WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, apperror.Persistence("read ratings", err)
	}
	ratings, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, apperror.Persistence("read ratings", err)
	}
	return ratings, nil
}

func (r *reviewRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reviewCols+` FROM reviews WHERE patient_id = $1 ORDER BY created_at DESC, id`, patientID)
	if err != nil {
		return nil, apperror.Persistence("list reviews", err)
	}
	defer rows.Close()

	var items []*Review
	for rows.Next() {
		rv, err := r.scanReview(rows)
		if err != nil {
			return nil, apperror.Persistence("list reviews", err)
		}
		items = append(items, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("list reviews", err)
	}
	return items, nil
}

func (r *reviewRepoPG) PendingForPatient(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) ([]*PendingReview, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.doctor_id, d.name, a.appointment_time, a.location, a.consultation_type, a.status
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN reviews r ON r.appointment_id = a.id
		WHERE a.patient_id = $1
			AND a.status = 'completed'
			AND r.id IS NULL
			AND ($2::uuid IS NULL OR a.doctor_id = $2)
		ORDER BY a.appointment_time DESC, a.id`, patientID, doctorID)
	if err != nil {
		return nil, apperror.Persistence("list pending reviews", err)
	}
	defer rows.Close()

	var items []*PendingReview
	for rows.Next() {
		var p PendingReview
		if err := rows.Scan(&p.AppointmentID, &p.DoctorID, &p.DoctorName, &p.AppointmentTime,
			&p.Location, &p.ConsultationType, &p.Status); err != nil {
			return nil, apperror.Persistence("list pending reviews", err)
		}
		items = append(items, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("list pending reviews", err)
	}
	return items, nil
}
