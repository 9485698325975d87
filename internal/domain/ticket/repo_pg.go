package ticket

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcare/rollcare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const ticketCols = `id, device_id, patient_id, category, priority, status, description,
	scheduled_for, resolved_at, COALESCE(resolution, ''), created_at, updated_at`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.DeviceID, &t.PatientID, &t.Category, &t.Priority, &t.Status,
		&t.Description, &t.ScheduledFor, &t.ResolvedAt, &t.Resolution, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Ticket) error {
	t.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO tickets (id, device_id, patient_id, category, priority, status, description, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		t.ID, t.DeviceID, t.PatientID, t.Category, t.Priority, t.Status, t.Description, t.ScheduledFor,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return scanTicket(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ticketCols+` FROM tickets WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *Ticket, from Status) error {
	return db.Guarded(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE tickets SET priority = $2, status = $3, scheduled_for = $4, resolved_at = $5,
			resolution = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 AND status = $7
		RETURNING updated_at`,
		t.ID, t.Priority, t.Status, t.ScheduledFor, t.ResolvedAt, t.Resolution, from,
	).Scan(&t.UpdatedAt))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Ticket, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.DeviceID != uuid.Nil {
		args = append(args, f.DeviceID)
		where += fmt.Sprintf(` AND device_id = $%d`, len(args))
	}
	return r.page(ctx, where, args, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Ticket, int, error) {
	return r.page(ctx, ` WHERE patient_id = $1`, []any{patientID}, limit, offset)
}

func (r *repoPG) page(ctx context.Context, where string, args []any, limit, offset int) ([]*Ticket, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + ticketCols + ` FROM tickets` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ActiveRepairs(ctx context.Context, deviceID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE device_id = $1 AND category = 'repair' AND status IN ('open', 'scheduled', 'in_progress')`,
		deviceID).Scan(&n)
	return n, err
}
