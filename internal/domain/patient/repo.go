package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository returns pgx.ErrNoRows for missing records and raw driver
// errors otherwise.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetBySubject(ctx context.Context, subject string) (*Patient, error)
	Update(ctx context.Context, p *Patient, from Status) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
}
