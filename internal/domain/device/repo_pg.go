package device

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcare/rollcare/internal/platform/db"
)

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepoPG{pool: pool}
}

func (r *deviceRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const deviceCols = `id, patient_id, quote_id, serial_number, model, manufacturer,
	status, delivered_at, retired_at, created_at, updated_at`

func (r *deviceRepoPG) scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.PatientID, &d.QuoteID, &d.SerialNumber, &d.Model,
		&d.Manufacturer, &d.Status, &d.DeliveredAt, &d.RetiredAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepoPG) Create(ctx context.Context, d *Device) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO devices (id, patient_id, quote_id, serial_number, model, manufacturer, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.QuoteID, d.SerialNumber, d.Model, d.Manufacturer, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *deviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	return r.scanDevice(r.conn(ctx).QueryRow(ctx, `SELECT `+deviceCols+` FROM devices WHERE id = $1`, id))
}

func (r *deviceRepoPG) Update(ctx context.Context, d *Device, from Status) error {
	return db.Guarded(r.conn(ctx).QueryRow(ctx, `
		UPDATE devices SET status = $2, delivered_at = $3, retired_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING updated_at`,
		d.ID, d.Status, d.DeliveredAt, d.RetiredAt, from,
	).Scan(&d.UpdatedAt))
}

func (r *deviceRepoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Device, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM devices WHERE ($1 = '' OR status = $1)`, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+deviceCols+` FROM devices
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return r.collect(rows, total)
}

func (r *deviceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Device, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+deviceCols+` FROM devices
		WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return r.collect(rows, total)
}

func (r *deviceRepoPG) collect(rows pgx.Rows, total int) ([]*Device, int, error) {
	defer rows.Close()
	items := []*Device{}
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
