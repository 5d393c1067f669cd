package doctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/domain/availability"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, specialty, experience, degree, location, gender, rating,
	available_times, created_by, updated_by, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var raw []byte
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Experience, &d.Degree, &d.Location, &d.Gender,
		&d.Rating, &raw, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.AvailableTimes, err = availability.Parse(raw); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) scanRows(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) getOne(ctx context.Context, op, query string, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(op, err)
	}
	return d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	cal, err := d.AvailableTimes.Bytes()
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, experience, degree, location, gender, rating,
			available_times, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialty, d.Experience, d.Degree, d.Location, d.Gender, d.Rating,
		cal, d.CreatedBy, d.UpdatedBy).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return apperror.Persistence("insert doctor", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.getOne(ctx, "get doctor", `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id)
}

func (r *doctorRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.getOne(ctx, "lock doctor", `SELECT `+doctorCols+` FROM doctors WHERE id = $1 FOR UPDATE`, id)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	cal, err := d.AvailableTimes.Bytes()
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET name=$2, specialty=$3, experience=$4, degree=$5, location=$6, gender=$7,
			available_times=$8, updated_by=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.Specialty, d.Experience, d.Degree, d.Location, d.Gender,
		cal, d.UpdatedBy).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	if err != nil {
		return apperror.Persistence("update doctor", err)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if db.IsConstraintViolation(err, db.ForeignKeyViolation, "") {
		return ErrDoctorHasAppointments
	}
	if err != nil {
		return apperror.Persistence("delete doctor", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) Search(ctx context.Context, p SearchParams, limit, offset int) ([]*Doctor, int, error) {
	query := `SELECT ` + doctorCols + ` FROM doctors WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM doctors WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, arg interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, arg)
		idx++
	}

	if p.Query != "" {
		clause := fmt.Sprintf(` AND (name ILIKE $%d ESCAPE '\' OR specialty ILIKE $%d ESCAPE '\')`, idx, idx)
		query += clause
		countQuery += clause
		args = append(args, containsPattern(p.Query))
		idx++
	}
	if p.Gender != "" {
		add(` AND LOWER(gender) = LOWER($%d)`, p.Gender)
	}
	if p.MinExperience != nil {
		add(` AND experience >= $%d`, *p.MinExperience)
	}
	if p.MaxExperience != nil {
		add(` AND experience <= $%d`, *p.MaxExperience)
	}
	if p.MinRating != nil {
		add(` AND rating >= $%d`, *p.MinRating)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Persistence("count doctors", err)
	}

	order := ` ORDER BY name ASC, id`
	if p.ByRating {
		order = ` ORDER BY rating DESC, name ASC, id`
	}
	query += order + fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperror.Persistence("search doctors", err)
	}
	items, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, apperror.Persistence("search doctors", err)
	}
	return items, total, nil
}

func (r *doctorRepoPG) TopRated(ctx context.Context, n int) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors ORDER BY rating DESC, name ASC LIMIT $1`, n)
	if err != nil {
		return nil, apperror.Persistence("top rated doctors", err)
	}
	items, err := r.scanRows(rows)
	if err != nil {
		return nil, apperror.Persistence("top rated doctors", err)
	}
	return items, nil
}

func (r *doctorRepoPG) LockAvailability(ctx context.Context, id uuid.UUID) (availability.Calendar, error) {
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT available_times FROM doctors WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, apperror.Persistence("lock availability", err)
	}
	return availability.Parse(raw)
}

func (r *doctorRepoPG) SaveAvailability(ctx context.Context, id uuid.UUID, cal availability.Calendar, updatedBy *uuid.UUID) error {
	raw, err := cal.Bytes()
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET available_times = $2, updated_by = COALESCE($3, updated_by), updated_at = NOW()
		WHERE id = $1`, id, raw, updatedBy)
	if err != nil {
		return apperror.Persistence("save availability", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) SetRating(ctx context.Context, id uuid.UUID, rating float64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctors SET rating = $2, updated_at = NOW() WHERE id = $1`, id, rating)
	if err != nil {
		return apperror.Persistence("set rating", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching q literally anywhere in
// the column.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
