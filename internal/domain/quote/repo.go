package quote

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, q *Quote) error
	GetByID(ctx context.Context, id uuid.UUID) (*Quote, error)
	// Update fails with db.ErrStale unless the stored status is still from.
	Update(ctx context.Context, q *Quote, from Status) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Quote, int, error)
}
