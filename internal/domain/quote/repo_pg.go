package quote

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcare/rollcare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const quoteCols = `id, patient_id, prescription_id, device_model, total_cents, covered_cents,
	patient_share_cents, status, valid_until, sent_at, decided_at, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.PatientID, &q.PrescriptionID, &q.DeviceModel, &q.TotalCents,
		&q.CoveredCents, &q.PatientShareCents, &q.Status, &q.ValidUntil, &q.SentAt,
		&q.DecidedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repoPG) Create(ctx context.Context, q *Quote) error {
	q.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO quotes (id, patient_id, prescription_id, device_model, total_cents,
			covered_cents, patient_share_cents, status, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		q.ID, q.PatientID, q.PrescriptionID, q.DeviceModel, q.TotalCents,
		q.CoveredCents, q.PatientShareCents, q.Status, q.ValidUntil,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return scanQuote(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+quoteCols+` FROM quotes WHERE id = $1`, id))
}

// Update persists status changes only; amounts are fixed at creation.
func (r *repoPG) Update(ctx context.Context, q *Quote, from Status) error {
	return db.Guarded(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE quotes SET status = $2, sent_at = $3, decided_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING updated_at`,
		q.ID, q.Status, q.SentAt, q.DecidedAt, from,
	).Scan(&q.UpdatedAt))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Quote, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT `+quoteCols+` FROM quotes
		WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, rows.Err()
}
