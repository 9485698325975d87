package quote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/domain/patient"
	"github.com/rollcare/rollcare/internal/domain/prescription"
	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/notification"
	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Patients interface {
	Contact(ctx context.Context, id uuid.UUID) (*patient.Contact, error)
}

type Prescriptions interface {
	Find(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
}

type Service struct {
	repo          Repository
	prescriptions Prescriptions
	patients      Patients
	notifier      notification.Enqueuer
	now           func() time.Time
}

func NewService(repo Repository, prescriptions Prescriptions, patients Patients, notifier notification.Enqueuer) *Service {
	return &Service{repo: repo, prescriptions: prescriptions, patients: patients, notifier: notifier, now: time.Now}
}

// repoErr names the repository failures a caller can act on.
func repoErr(err error) error {
	switch {
	case dberr.IsNotFound(err):
		return apperr.Wrap(apperr.KindNotFound, "Quote not found", err)
	case errors.Is(err, db.ErrStale):
		return apperr.Wrap(apperr.KindConflict, "Quote was changed by another request", err)
	}
	return err
}

// Create drafts a quote for a verified prescription. The patient is taken
// from the prescription.
func (s *Service) Create(ctx context.Context, q *Quote) error {
	if q.ValidUntil.IsZero() {
		q.ValidUntil = s.now().Add(DefaultValidity)
	}
	if err := validate(q, s.now()); err != nil {
		return err
	}
	rx, err := s.prescriptions.Find(ctx, q.PrescriptionID)
	if err != nil {
		return err
	}
	if rx.Status != prescription.StatusVerified {
		return apperr.Business("Prescription must be verified before quoting")
	}
	q.PatientID = rx.PatientID
	q.PatientShareCents = q.TotalCents - q.CoveredCents
	q.Status = StatusDraft
	q.SentAt = nil
	q.DecidedAt = nil
	return s.repo.Create(ctx, q)
}

// Find loads a quote without access checks.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	return q, nil
}

func (s *Service) authorize(ctx context.Context, patientID uuid.UUID, roles ...auth.Role) (*patient.Contact, error) {
	contact, err := s.patients.Contact(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireSelfOr(auth.PrincipalFrom(ctx), contact.Subject, roles...); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, q.PatientID, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Quote, int, error) {
	if _, err := s.authorize(ctx, patientID, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Send moves a draft to sent and notifies the patient.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusDraft {
		return nil, apperr.Business("Only draft quotes can be sent")
	}
	now := s.now()
	if q.expiredAt(now) {
		return nil, s.expire(ctx, q)
	}
	q.Status = StatusSent
	q.SentAt = &now
	if err := s.repo.Update(ctx, q, StatusDraft); err != nil {
		return nil, repoErr(err)
	}

	contact, err := s.patients.Contact(ctx, q.PatientID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("quote_id", q.ID.String()).Msg("cannot notify patient")
		return q, nil
	}
	notification.Send(ctx, s.notifier, notification.Message{
		Template: notification.TemplateQuoteSent,
		Email:    contact.Email,
		Phone:    contact.Phone,
		Data: map[string]string{
			"patient_name":  contact.FirstName,
			"device_model":  q.DeviceModel,
			"total":         formatCents(q.TotalCents),
			"covered":       formatCents(q.CoveredCents),
			"patient_share": formatCents(q.PatientShareCents),
			"valid_until":   q.ValidUntil.Format(validation.DateLayout),
			"quote_ref":     q.Ref(),
		},
	})
	return q, nil
}

// Accept records the patient's agreement. Only the patient or ops may decide.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.decide(ctx, id, StatusAccepted)
}

func (s *Service) Decline(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.decide(ctx, id, StatusDeclined)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, to Status) (*Quote, error) {
	q, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, q.PatientID, auth.RoleOps); err != nil {
		return nil, err
	}
	if q.Status != StatusSent {
		return nil, apperr.Business("Only sent quotes can be " + string(to))
	}
	now := s.now()
	if q.expiredAt(now) {
		return nil, s.expire(ctx, q)
	}
	q.Status = to
	q.DecidedAt = &now
	if err := s.repo.Update(ctx, q, StatusSent); err != nil {
		return nil, repoErr(err)
	}
	return q, nil
}

// expire persists the expired status and returns the error to report.
func (s *Service) expire(ctx context.Context, q *Quote) error {
	from := q.Status
	q.Status = StatusExpired
	if err := s.repo.Update(ctx, q, from); err != nil {
		return repoErr(err)
	}
	return apperr.Business("Quote has expired")
}
