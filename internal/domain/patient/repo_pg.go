package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcare/rollcare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, first_name, last_name, birth_date, email,
	COALESCE(phone, ''), COALESCE(nir, ''), COALESCE(carte_vitale_number, ''),
	COALESCE(address_line, ''), COALESCE(postal_code, ''), COALESCE(city, ''),
	COALESCE(insurer_code, ''), status, COALESCE(user_subject, ''),
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Email,
		&p.Phone, &p.NIR, &p.CarteVitaleNumber, &p.AddressLine, &p.PostalCode,
		&p.City, &p.InsurerCode, &p.Status, &p.UserSubject, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, birth_date, email, phone, nir,
			carte_vitale_number, address_line, postal_code, city, insurer_code, status, user_subject)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, NULLIF($14, ''))
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Email, p.Phone, p.NIR,
		p.CarteVitaleNumber, p.AddressLine, p.PostalCode, p.City, p.InsurerCode, p.Status, p.UserSubject,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetBySubject(ctx context.Context, subject string) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_subject = $1`, subject))
}

func (r *repoPG) Update(ctx context.Context, p *Patient, from Status) error {
	return db.Guarded(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, birth_date = $4, email = $5,
			phone = NULLIF($6, ''), nir = NULLIF($7, ''), carte_vitale_number = NULLIF($8, ''),
			address_line = NULLIF($9, ''), postal_code = NULLIF($10, ''), city = NULLIF($11, ''),
			insurer_code = NULLIF($12, ''), status = $13, user_subject = NULLIF($14, ''), updated_at = NOW()
		WHERE id = $1 AND status = $15
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Email, p.Phone, p.NIR,
		p.CarteVitaleNumber, p.AddressLine, p.PostalCode, p.City, p.InsurerCode, p.Status, p.UserSubject, from,
	).Scan(&p.UpdatedAt))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.Query != "" {
		args = append(args, strings.ToLower(f.Query)+"%")
		where += fmt.Sprintf(` AND (lower(last_name) LIKE $%d OR lower(email) LIKE $%d)`, len(args), len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
