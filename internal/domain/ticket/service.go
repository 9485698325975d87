package ticket

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/domain/device"
	"github.com/rollcare/rollcare/internal/domain/patient"
	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/notification"
)

type Devices interface {
	FindDevice(ctx context.Context, id uuid.UUID) (*device.Device, error)
	Transition(ctx context.Context, id uuid.UUID, to device.Status) (*device.Device, error)
}

type Patients interface {
	Contact(ctx context.Context, id uuid.UUID) (*patient.Contact, error)
}

// StatusChange is a requested ticket transition. ScheduledFor is required
// when scheduling and Resolution when resolving.
type StatusChange struct {
	Status       Status
	ScheduledFor *time.Time
	Resolution   string
}

type Service struct {
	repo     Repository
	devices  Devices
	patients Patients
	notifier notification.Enqueuer
	tx       db.Transactor
	now      func() time.Time
}

func NewService(repo Repository, devices Devices, patients Patients, notifier notification.Enqueuer, tx db.Transactor) *Service {
	return &Service{repo: repo, devices: devices, patients: patients, notifier: notifier, tx: tx, now: time.Now}
}

// repoErr names the repository failures a caller can act on.
func repoErr(err error) error {
	switch {
	case dberr.IsNotFound(err):
		return apperr.Wrap(apperr.KindNotFound, "Ticket not found", err)
	case errors.Is(err, db.ErrStale):
		return apperr.Wrap(apperr.KindConflict, "Ticket was changed by another request", err)
	}
	return err
}

func (s *Service) authorize(ctx context.Context, patientID uuid.UUID) (*patient.Contact, error) {
	contact, err := s.patients.Contact(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireSelfOr(auth.PrincipalFrom(ctx), contact.Subject, auth.RoleAdmin, auth.RoleOps); err != nil {
		return nil, err
	}
	return contact, nil
}

// Open files a ticket against a device. A repair ticket puts an in-service
// device under repair in the same transaction.
func (s *Service) Open(ctx context.Context, t *Ticket) error {
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if err := schema.Validate(t); err != nil {
		return err
	}
	d, err := s.devices.FindDevice(ctx, t.DeviceID)
	if err != nil {
		return err
	}
	contact, err := s.authorize(ctx, d.PatientID)
	if err != nil {
		return err
	}
	if d.Status == device.StatusRetired {
		return apperr.Business("Retired devices cannot be serviced")
	}
	if t.Category == CategoryRepair && d.Status != device.StatusInService && d.Status != device.StatusUnderRepair {
		return apperr.Business("Repairs can only be opened for devices in service")
	}

	t.PatientID = d.PatientID
	t.Status = StatusOpen
	t.ScheduledFor = nil
	t.ResolvedAt = nil
	t.Resolution = ""

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		if t.Category == CategoryRepair && d.Status == device.StatusInService {
			_, err := s.devices.Transition(ctx, d.ID, device.StatusUnderRepair)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, t, contact)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	if _, err := s.authorize(ctx, t.PatientID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Ticket, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid(apperr.Detail{Field: "status", Message: "status is not a ticket status"})
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Ticket, int, error) {
	if _, err := s.authorize(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateStatus applies a transition and notifies the patient. For repair
// tickets the device follows: it returns to service once no repair remains
// active, and goes back under repair when one is reopened.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*Ticket, error) {
	if !change.Status.Valid() {
		return nil, apperr.Invalid(apperr.Detail{Field: "status", Message: "status is not a ticket status"})
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	if !t.Status.CanMoveTo(change.Status) {
		return nil, apperr.Business("Cannot move ticket from " + string(t.Status) + " to " + string(change.Status))
	}

	now := s.now()
	switch change.Status {
	case StatusScheduled:
		if change.ScheduledFor == nil || !change.ScheduledFor.After(now) {
			return nil, apperr.Invalid(apperr.Detail{Field: "scheduledFor", Message: "scheduledFor must be in the future"})
		}
		t.ScheduledFor = change.ScheduledFor
	case StatusResolved:
		resolution := strings.TrimSpace(change.Resolution)
		if resolution == "" {
			return nil, apperr.Invalid(apperr.Detail{Field: "resolution", Message: "resolution is required"})
		}
		t.Resolution = resolution
		t.ResolvedAt = &now
	case StatusInProgress:
		t.ResolvedAt = nil
		t.Resolution = ""
	}
	from := t.Status
	t.Status = change.Status

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, t, from); err != nil {
			return repoErr(err)
		}
		if t.Category != CategoryRepair {
			return nil
		}
		return s.syncDevice(ctx, t.DeviceID)
	})
	if err != nil {
		return nil, err
	}

	contact, err := s.patients.Contact(ctx, t.PatientID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("ticket_id", t.ID.String()).Msg("cannot notify patient")
		return t, nil
	}
	s.notify(ctx, t, contact)
	return t, nil
}

func (s *Service) syncDevice(ctx context.Context, deviceID uuid.UUID) error {
	active, err := s.repo.ActiveRepairs(ctx, deviceID)
	if err != nil {
		return err
	}
	d, err := s.devices.FindDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	switch {
	case active == 0 && d.Status == device.StatusUnderRepair:
		_, err = s.devices.Transition(ctx, deviceID, device.StatusInService)
	case active > 0 && d.Status == device.StatusInService:
		_, err = s.devices.Transition(ctx, deviceID, device.StatusUnderRepair)
	}
	return err
}

func (s *Service) notify(ctx context.Context, t *Ticket, contact *patient.Contact) {
	var details string
	switch {
	case t.Status == StatusScheduled && t.ScheduledFor != nil:
		details = "\n\nScheduled for: " + t.ScheduledFor.Format("2006-01-02 15:04")
	case t.Status == StatusResolved:
		details = "\n\nResolution: " + t.Resolution
	}
	notification.Send(ctx, s.notifier, notification.Message{
		Template: notification.TemplateTicketStatus,
		Email:    contact.Email,
		Phone:    contact.Phone,
		Data: map[string]string{
			"patient_name": contact.FirstName,
			"ticket_ref":   t.Ref(),
			"status":       strings.ReplaceAll(string(t.Status), "_", " "),
			"category":     string(t.Category),
			"details":      details,
		},
	})
}
