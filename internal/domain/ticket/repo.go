package ticket

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error)
	Update(ctx context.Context, t *Ticket, from Status) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Ticket, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Ticket, int, error)
	// ActiveRepairs counts unfinished repair tickets on a device.
	ActiveRepairs(ctx context.Context, deviceID uuid.UUID) (int, error)
}
