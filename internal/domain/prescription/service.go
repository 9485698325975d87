package prescription

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/domain/patient"
	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/notification"
	"github.com/rollcare/rollcare/internal/platform/objectstore"
	"github.com/rollcare/rollcare/internal/platform/validation"
)

// Patients resolves the owner of a prescription.
type Patients interface {
	Contact(ctx context.Context, id uuid.UUID) (*patient.Contact, error)
}

// Documents locates prescription scans in object storage.
type Documents struct {
	Store  objectstore.Store
	Bucket string
	TTL    time.Duration
}

type Service struct {
	repo     Repository
	patients Patients
	docs     Documents
	notifier notification.Enqueuer
	now      func() time.Time
	schema   validation.Schema[*Prescription]
}

func NewService(repo Repository, patients Patients, docs Documents, notifier notification.Enqueuer) *Service {
	if docs.TTL <= 0 {
		docs.TTL = 15 * time.Minute
	}
	s := &Service{repo: repo, patients: patients, docs: docs, notifier: notifier, now: time.Now}
	s.schema = schema(func() time.Time { return s.now() })
	return s
}

// repoErr names the repository failures a caller can act on.
func repoErr(err error) error {
	switch {
	case dberr.IsNotFound(err):
		return apperr.Wrap(apperr.KindNotFound, "Prescription not found", err)
	case errors.Is(err, db.ErrStale):
		return apperr.Wrap(apperr.KindConflict, "Prescription was changed by another request", err)
	}
	return err
}

// Create records a pending prescription. An unknown patient surfaces as a
// foreign-key violation from the store.
func (s *Service) Create(ctx context.Context, p *Prescription) error {
	p.Status = StatusPending
	p.DocumentKey = ""
	p.VerifiedBy = ""
	p.VerifiedAt = nil
	p.RejectionReason = ""
	p.Notes = strings.TrimSpace(p.Notes)
	if err := s.schema.Validate(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// Find loads a prescription without access checks.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	return p, nil
}

func (s *Service) authorize(ctx context.Context, patientID uuid.UUID) (*patient.Contact, error) {
	contact, err := s.patients.Contact(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireSelfOr(auth.PrincipalFrom(ctx), contact.Subject, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, p.PatientID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if _, err := s.authorize(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Verify approves a pending prescription issued within MaxAge.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, apperr.Business("Only pending prescriptions can be verified")
	}
	now := s.now()
	if now.Sub(p.IssuedAt) > MaxAge {
		return nil, apperr.Business("Prescription is older than one year")
	}
	p.Status = StatusVerified
	p.VerifiedBy = reviewer(ctx)
	p.VerifiedAt = &now
	if err := s.repo.Update(ctx, p, StatusPending); err != nil {
		return nil, repoErr(err)
	}
	s.notify(ctx, p, "verified", "")
	return p, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Prescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid(apperr.Detail{Field: "reason", Message: "reason is required"})
	}
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, apperr.Business("Only pending prescriptions can be rejected")
	}
	now := s.now()
	p.Status = StatusRejected
	p.RejectionReason = reason
	p.VerifiedBy = reviewer(ctx)
	p.VerifiedAt = &now
	if err := s.repo.Update(ctx, p, StatusPending); err != nil {
		return nil, repoErr(err)
	}
	s.notify(ctx, p, "rejected", "\n\nReason: "+reason)
	return p, nil
}

func reviewer(ctx context.Context) string {
	if p := auth.PrincipalFrom(ctx); p != nil {
		return p.SubjectID
	}
	return ""
}

func (s *Service) notify(ctx context.Context, p *Prescription, outcome, details string) {
	contact, err := s.patients.Contact(ctx, p.PatientID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("prescription_id", p.ID.String()).Msg("cannot notify patient")
		return
	}
	notification.Send(ctx, s.notifier, notification.Message{
		Template: notification.TemplatePrescriptionReviewed,
		Email:    contact.Email,
		Phone:    contact.Phone,
		Data: map[string]string{
			"patient_name":    contact.FirstName,
			"prescriber_name": p.PrescriberName,
			"outcome":         outcome,
			"details":         details,
		},
	})
}

// DocumentUploadURL signs a PUT URL for the prescription scan and records its
// key. The document can only be replaced while the prescription is pending.
func (s *Service) DocumentUploadURL(ctx context.Context, id uuid.UUID, contentType string) (*DocumentURL, error) {
	ext, err := objectstore.ExtensionFor(contentType)
	if err != nil {
		return nil, err
	}
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, p.PatientID); err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, apperr.Business("Documents can only be attached to pending prescriptions")
	}

	key := objectstore.Key("prescriptions", p.PatientID.String(), p.ID.String()+ext)
	url, err := s.docs.Store.PresignUpload(ctx, s.docs.Bucket, key, contentType, s.docs.TTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "Document storage unavailable", err)
	}
	p.DocumentKey = key
	if err := s.repo.Update(ctx, p, StatusPending); err != nil {
		return nil, repoErr(err)
	}
	return &DocumentURL{URL: url, Key: key, Method: http.MethodPut, ExpiresAt: s.now().Add(s.docs.TTL)}, nil
}

// DocumentDownloadURL signs a GET URL for an uploaded scan.
func (s *Service) DocumentDownloadURL(ctx context.Context, id uuid.UUID) (*DocumentURL, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, p.PatientID); err != nil {
		return nil, err
	}
	if p.DocumentKey == "" {
		return nil, apperr.NotFound("Prescription document not found")
	}
	ok, err := s.docs.Store.Exists(ctx, s.docs.Bucket, p.DocumentKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "Document storage unavailable", err)
	}
	if !ok {
		return nil, apperr.NotFound("Prescription document not found")
	}
	url, err := s.docs.Store.PresignDownload(ctx, s.docs.Bucket, p.DocumentKey, s.docs.TTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "Document storage unavailable", err)
	}
	return &DocumentURL{URL: url, Key: p.DocumentKey, Method: http.MethodGet, ExpiresAt: s.now().Add(s.docs.TTL)}, nil
}
