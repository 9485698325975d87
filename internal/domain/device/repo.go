package device

import (
	"context"

	"github.com/google/uuid"
)

type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	Update(ctx context.Context, d *Device, from Status) error
	List(ctx context.Context, status Status, limit, offset int) ([]*Device, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Device, int, error)
}
