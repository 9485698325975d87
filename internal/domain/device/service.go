package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/domain/patient"
	"github.com/rollcare/rollcare/internal/domain/quote"
	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
)

type Quotes interface {
	Find(ctx context.Context, id uuid.UUID) (*quote.Quote, error)
}

type Patients interface {
	Contact(ctx context.Context, id uuid.UUID) (*patient.Contact, error)
}

type Service struct {
	devices  DeviceRepository
	quotes   Quotes
	patients Patients
	now      func() time.Time
}

func NewService(devices DeviceRepository, quotes Quotes, patients Patients) *Service {
	return &Service{devices: devices, quotes: quotes, patients: patients, now: time.Now}
}

// repoErr names the repository failures a caller can act on.
func repoErr(err error) error {
	switch {
	case dberr.IsNotFound(err):
		return apperr.Wrap(apperr.KindNotFound, "Device not found", err)
	case errors.Is(err, db.ErrStale):
		return apperr.Wrap(apperr.KindConflict, "Device was changed by another request", err)
	}
	return err
}

// CreateDevice orders a device for an accepted quote. Serial numbers and
// quotes are unique across devices; the store reports duplicates.
func (s *Service) CreateDevice(ctx context.Context, d *Device) error {
	if err := schema.Validate(d); err != nil {
		return err
	}
	q, err := s.quotes.Find(ctx, d.QuoteID)
	if err != nil {
		return err
	}
	if q.Status != quote.StatusAccepted {
		return apperr.Business("Quote must be accepted before ordering a device")
	}
	d.PatientID = q.PatientID
	d.Status = StatusOrdered
	d.DeliveredAt = nil
	d.RetiredAt = nil
	return s.devices.Create(ctx, d)
}

// FindDevice loads a device without access checks.
func (s *Service) FindDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	return d, nil
}

func (s *Service) authorize(ctx context.Context, patientID uuid.UUID) error {
	contact, err := s.patients.Contact(ctx, patientID)
	if err != nil {
		return err
	}
	return auth.RequireSelfOr(auth.PrincipalFrom(ctx), contact.Subject, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber)
}

func (s *Service) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	d, err := s.FindDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, d.PatientID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDevices(ctx context.Context, status Status, limit, offset int) ([]*Device, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Invalid(apperr.Detail{Field: "status", Message: "status is not a device status"})
	}
	return s.devices.List(ctx, status, limit, offset)
}

func (s *Service) ListDevicesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Device, int, error) {
	if err := s.authorize(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.devices.ListByPatient(ctx, patientID, limit, offset)
}

// Transition moves a device along its lifecycle:
// ordered → delivered → in_service ⇄ under_repair, and any state → retired.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Device, error) {
	if !to.Valid() {
		return nil, apperr.Invalid(apperr.Detail{Field: "status", Message: "status is not a device status"})
	}
	d, err := s.FindDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.CanMoveTo(to) {
		return nil, apperr.Business("Cannot move device from " + string(d.Status) + " to " + string(to))
	}
	from := d.Status
	now := s.now()
	switch to {
	case StatusDelivered:
		d.DeliveredAt = &now
	case StatusRetired:
		d.RetiredAt = &now
	}
	d.Status = to
	if err := s.devices.Update(ctx, d, from); err != nil {
		return nil, repoErr(err)
	}
	return d, nil
}
