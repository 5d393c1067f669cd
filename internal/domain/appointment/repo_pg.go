package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

const activeSlotConstraint = "appointments_active_slot_key"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, doctor_id, patient_id, appointment_time, location, consultation_type,
	status, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.AppointmentTime, &a.Location,
		&a.ConsultationType, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appointment_time, location,
			consultation_type, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.AppointmentTime, a.Location,
		a.ConsultationType, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsConstraintViolation(err, db.UniqueViolation, activeSlotConstraint) {
		return ErrSlotAlreadyBooked
	}
	if err != nil {
		return apperror.Persistence("insert appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) get(ctx context.Context, op, query string, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(op, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, "get appointment", `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id)
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, "lock appointment", `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *appointmentRepoPG) ExistsActive(ctx context.Context, doctorID uuid.UUID, appointmentTime string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_time = $2 AND status <> 'rejected'
		)`, doctorID, appointmentTime).Scan(&exists)
	if err != nil {
		return false, apperror.Persistence("check booked slot", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+apptCols, id, status))
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if db.IsConstraintViolation(err, db.UniqueViolation, activeSlotConstraint) {
		return nil, ErrSlotAlreadyBooked
	}
	if err != nil {
		return nil, apperror.Persistence("update appointment status", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) list(ctx context.Context, where, order string, args []interface{}, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Persistence("count appointments", err)
	}

	n := len(args)
	query := `SELECT ` + apptCols + ` FROM appointments` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperror.Persistence("list appointments", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, apperror.Persistence("list appointments", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.Persistence("list appointments", err)
	}
	return items, total, nil
}

func (r *appointmentRepoPG) ListAll(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if status != "" {
		where += ` AND status = $1`
		args = append(args, status)
	}
	order := ` ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END, appointment_time ASC, id`
	return r.list(ctx, where, order, args, limit, offset)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, ` WHERE patient_id = $1`, ` ORDER BY appointment_time DESC, id`,
		[]interface{}{patientID}, limit, offset)
}
