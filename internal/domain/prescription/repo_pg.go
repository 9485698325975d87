package prescription

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

const prescriptionCols = `id, patient_id, prescriber_name, prescriber_id, issued_at, device_category,
	COALESCE(notes, ''), COALESCE(document_key, ''), status, COALESCE(verified_by, ''),
	verified_at, COALESCE(rejection_reason, ''), created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.PrescriberName, &p.PrescriberID, &p.IssuedAt,
		&p.DeviceCategory, &p.Notes, &p.DocumentKey, &p.Status, &p.VerifiedBy,
		&p.VerifiedAt, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, prescriber_name, prescriber_id, issued_at,
			device_category, notes, document_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.PrescriberName, p.PrescriberID, p.IssuedAt,
		p.DeviceCategory, p.Notes, p.DocumentKey, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Prescription, from Status) error {
	return db.Guarded(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE prescriptions SET notes = NULLIF($2, ''), document_key = NULLIF($3, ''), status = $4,
			verified_by = NULLIF($5, ''), verified_at = $6, rejection_reason = NULLIF($7, ''),
			updated_at = NOW()
		WHERE id = $1 AND status = $8
		RETURNING updated_at`,
		p.ID, p.Notes, p.DocumentKey, p.Status, p.VerifiedBy, p.VerifiedAt, p.RejectionReason, from,
	).Scan(&p.UpdatedAt))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT `+prescriptionCols+` FROM prescriptions
		WHERE patient_id = $1 ORDER BY issued_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
