package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

// Outbox message states.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message is one row of the notification outbox.
type Message struct {
	ID            uuid.UUID         `json:"id"`
	Template      string            `json:"template"`
	Recipient     string            `json:"recipient"`
	Data          map[string]string `json:"data"`
	Status        string            `json:"status"`
	Attempts      int               `json:"attempts"`
	LastError     *string           `json:"last_error,omitempty"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	CreatedAt     time.Time         `json:"created_at"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
}

// Outbox persists messages between enqueue and delivery.
type Outbox interface {
	Insert(ctx context.Context, m *Message) error
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	// ClaimDue returns up to limit pending messages due at now and pushes
	// their next attempt out by lease so other workers skip them meanwhile.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	Requeue(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, status string, limit, offset int) ([]*Message, int, error)
	Stats(ctx context.Context) (map[string]int, error)
}

type pgOutbox struct{ pool *pgxpool.Pool }

// NewPGOutbox stores the outbox in the notification_outbox table. Insert joins
// the caller's transaction when one is bound to the context.
func NewPGOutbox(pool *pgxpool.Pool) Outbox { return &pgOutbox{pool: pool} }

const outboxCols = `id, template, recipient, data, status, attempts, last_error,
	next_attempt_at, created_at, sent_at`

func (o *pgOutbox) scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var data []byte
	if err := row.Scan(&m.ID, &m.Template, &m.Recipient, &data, &m.Status, &m.Attempts,
		&m.LastError, &m.NextAttemptAt, &m.CreatedAt, &m.SentAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return &m, nil
}

func (o *pgOutbox) Insert(ctx context.Context, m *Message) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}
	_, err = db.Conn(ctx, o.pool).Exec(ctx, `
		INSERT INTO notification_outbox (id, template, recipient, data, status, attempts,
			next_attempt_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.Template, m.Recipient, data, m.Status, m.Attempts, m.NextAttemptAt, m.CreatedAt)
	if err != nil {
		return apperror.Persistence("insert notification", err)
	}
	return nil
}

func (o *pgOutbox) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := o.scanMessage(db.Conn(ctx, o.pool).QueryRow(ctx,
		`SELECT `+outboxCols+` FROM notification_outbox WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, apperror.Persistence("get notification", err)
	}
	return m, nil
}

func (o *pgOutbox) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Message, error) {
	rows, err := db.Conn(ctx, o.pool).Query(ctx, `
		UPDATE notification_outbox SET next_attempt_at = $3
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING `+outboxCols,
		now, limit, now.Add(lease))
	if err != nil {
		return nil, apperror.Persistence("claim notifications", err)
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		m, err := o.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (o *pgOutbox) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.Conn(ctx, o.pool).Exec(ctx, `
		UPDATE notification_outbox SET status = 'sent', attempts = attempts + 1,
			last_error = NULL, sent_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return apperror.Persistence("mark notification sent", err)
	}
	return nil
}

func (o *pgOutbox) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time) error {
	_, err := db.Conn(ctx, o.pool).Exec(ctx, `
		UPDATE notification_outbox SET attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1`, id, attempts, lastErr, next)
	if err != nil {
		return apperror.Persistence("schedule notification retry", err)
	}
	return nil
}

func (o *pgOutbox) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	_, err := db.Conn(ctx, o.pool).Exec(ctx, `
		UPDATE notification_outbox SET status = 'failed', attempts = $2, last_error = $3
		WHERE id = $1`, id, attempts, lastErr)
	if err != nil {
		return apperror.Persistence("mark notification failed", err)
	}
	return nil
}

func (o *pgOutbox) Requeue(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, o.pool).Exec(ctx, `
		UPDATE notification_outbox SET status = 'pending', attempts = 0, next_attempt_at = $2
		WHERE id = $1 AND status = 'failed'`, id, at)
	if err != nil {
		return apperror.Persistence("requeue notification", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFailed
	}
	return nil
}

func (o *pgOutbox) List(ctx context.Context, status string, limit, offset int) ([]*Message, int, error) {
	query := `SELECT ` + outboxCols + ` FROM notification_outbox WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM notification_outbox WHERE 1=1`
	var args []interface{}
	idx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := db.Conn(ctx, o.pool).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Persistence("count notifications", err)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, o.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperror.Persistence("list notifications", err)
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		m, err := o.scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (o *pgOutbox) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := db.Conn(ctx, o.pool).Query(ctx,
		`SELECT status, COUNT(*) FROM notification_outbox GROUP BY status`)
	if err != nil {
		return nil, apperror.Persistence("notification stats", err)
	}
	defer rows.Close()

	stats := map[string]int{StatusPending: 0, StatusSent: 0, StatusFailed: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
