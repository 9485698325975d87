package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Service struct {
	repo   Repository
	now    func() time.Time
	schema validation.Schema[*Patient]
}

func NewService(repo Repository) *Service {
	s := &Service{repo: repo, now: time.Now}
	s.schema = schema(func() time.Time { return s.now() })
	return s
}

// repoErr names the repository failures a caller can act on.
func repoErr(err error) error {
	switch {
	case dberr.IsNotFound(err):
		return apperr.Wrap(apperr.KindNotFound, "Patient not found", err)
	case errors.Is(err, db.ErrStale):
		return apperr.Wrap(apperr.KindConflict, "Patient was changed by another request", err)
	}
	return err
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.Status = StatusOnboarding
	if err := s.schema.Validate(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// Find loads a patient without access checks. It is meant for other modules
// that have already authorized the caller.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(err)
	}
	return p, nil
}

// Contact returns the notification and ownership data of a patient.
func (s *Service) Contact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Contact(), nil
}

// Get loads a patient for the caller. Patients may only read their own record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireSelfOr(auth.PrincipalFrom(ctx), p.UserSubject, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber); err != nil {
		return nil, err
	}
	return p, nil
}

// Me returns the record linked to the calling patient.
func (s *Service) Me(ctx context.Context) (*Patient, error) {
	principal := auth.PrincipalFrom(ctx)
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	p, err := s.repo.GetBySubject(ctx, principal.SubjectID)
	if err != nil {
		return nil, repoErr(err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	if f.Status != "" && !f.Status.valid() {
		return nil, 0, apperr.Invalid(apperr.Detail{Field: "status", Message: "status must be one of: onboarding, active, archived"})
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Update replaces the editable fields of a patient. Status is only changed
// through Activate and Archive.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in *Patient) (*Patient, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusArchived {
		return nil, apperr.Business("Archived patients cannot be modified")
	}
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.BirthDate = in.BirthDate
	p.Email = in.Email
	p.Phone = in.Phone
	p.NIR = in.NIR
	p.CarteVitaleNumber = in.CarteVitaleNumber
	p.AddressLine = in.AddressLine
	p.PostalCode = in.PostalCode
	p.City = in.City
	p.InsurerCode = in.InsurerCode
	p.UserSubject = in.UserSubject
	if err := s.schema.Validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p, p.Status); err != nil {
		return nil, repoErr(err)
	}
	return p, nil
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.transition(ctx, id, StatusActive)
}

func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.transition(ctx, id, StatusArchived)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Patient, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.canMoveTo(to) {
		return nil, apperr.Business("Cannot move patient from " + string(p.Status) + " to " + string(to))
	}
	from := p.Status
	p.Status = to
	if err := s.repo.Update(ctx, p, from); err != nil {
		return nil, repoErr(err)
	}
	return p, nil
}
