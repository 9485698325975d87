package patient

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
)

// -- Mock Repository --

type mockPatientRepo struct {
	store map[uuid.UUID]*Patient

	// afterRead runs once after the next GetByID, standing in for a
	// request that commits between another request's read and write.
	afterRead func(stored *Patient)
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{store: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.store {
		if existing.Email == p.Email {
			return &dberr.EngineError{Code: dberr.UniqueViolation, Target: []string{"email"}}
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	if hook := m.afterRead; hook != nil {
		m.afterRead = nil
		hook(p)
	}
	return &cp, nil
}

func (m *mockPatientRepo) GetBySubject(_ context.Context, subject string) (*Patient, error) {
	for _, p := range m.store {
		if subject != "" && p.UserSubject == subject {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient, from Status) error {
	stored, ok := m.store[p.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != from {
		return db.ErrStale
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	var all []*Patient
	for _, p := range m.store {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Query != "" && !strings.HasPrefix(strings.ToLower(p.LastName), strings.ToLower(f.Query)) {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastName < all[j].LastName })
	total := len(all)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func validPatient() *Patient {
	return &Patient{
		FirstName:  "Camille",
		LastName:   "Martin",
		BirthDate:  time.Date(1975, 3, 14, 0, 0, 0, 0, time.UTC),
		Email:      "camille.martin@example.com",
		Phone:      "+33612345678",
		NIR:        "275037512345678",
		PostalCode: "75011",
		City:       "Paris",
	}
}

func as(role auth.Role, subject string) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{Role: role, SubjectID: subject})
}

func TestService_CreateStartsOnboarding(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	p := validPatient()
	p.Status = StatusActive
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.Status != StatusOnboarding {
		t.Errorf("status = %s, want onboarding", p.Status)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	p := validPatient()
	p.FirstName = ""
	p.Email = "not-an-email"
	p.Phone = "0612345678"
	p.NIR = "123"
	p.PostalCode = "750"
	p.BirthDate = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	err := svc.Create(context.Background(), p)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindValidation {
		t.Fatalf("err = %v", err)
	}
	var fields []string
	for _, d := range ae.Details {
		fields = append(fields, d.Field)
	}
	want := "firstName,birthDate,email,phone,nir,postalCode"
	if got := strings.Join(fields, ","); got != want {
		t.Errorf("fields = %s, want %s", got, want)
	}
}

func TestService_CreateDuplicateEmail(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	if err := svc.Create(context.Background(), validPatient()); err != nil {
		t.Fatal(err)
	}
	err := svc.Create(context.Background(), validPatient())
	if !dberr.IsUniqueViolation(err) {
		t.Errorf("err = %v, want unique violation", err)
	}
}

func TestService_GetAccess(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	p := validPatient()
	p.UserSubject = "sub-camille"
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ctx  context.Context
		kind apperr.Kind
	}{
		{"ops", as(auth.RoleOps, "ops-1"), 0},
		{"prescriber", as(auth.RolePrescriber, "dr-1"), 0},
		{"self", as(auth.RolePatient, "sub-camille"), 0},
		{"other patient", as(auth.RolePatient, "sub-other"), apperr.KindAuthorization},
		{"anonymous", context.Background(), apperr.KindAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Get(tt.ctx, p.ID)
			if tt.kind == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !apperr.IsKind(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	_, err := svc.Get(as(auth.RoleAdmin, "a"), uuid.New())
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindNotFound || ae.Message != "Patient not found" {
		t.Errorf("err = %v", err)
	}
}

func TestService_Me(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	p := validPatient()
	p.UserSubject = "sub-camille"
	_ = svc.Create(context.Background(), p)

	got, err := svc.Me(as(auth.RolePatient, "sub-camille"))
	if err != nil || got.ID != p.ID {
		t.Errorf("got=%v err=%v", got, err)
	}
	if _, err := svc.Me(as(auth.RolePatient, "sub-unknown")); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown subject err = %v", err)
	}
}

func TestService_Transitions(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	ctx := context.Background()
	p := validPatient()
	_ = svc.Create(ctx, p)

	if got, err := svc.Activate(ctx, p.ID); err != nil || got.Status != StatusActive {
		t.Fatalf("activate: %v %v", got, err)
	}
	if _, err := svc.Activate(ctx, p.ID); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Errorf("second activate err = %v", err)
	}
	if got, err := svc.Archive(ctx, p.ID); err != nil || got.Status != StatusArchived {
		t.Fatalf("archive: %v %v", got, err)
	}
	if _, err := svc.Archive(ctx, p.ID); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Errorf("second archive err = %v", err)
	}
	if _, err := svc.Update(ctx, p.ID, validPatient()); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Errorf("update archived err = %v", err)
	}
}

func TestService_UpdateKeepsStatus(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	ctx := context.Background()
	p := validPatient()
	_ = svc.Create(ctx, p)

	in := validPatient()
	in.City = "Lyon"
	in.PostalCode = "69003"
	in.Status = StatusArchived
	got, err := svc.Update(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.City != "Lyon" || got.Status != StatusOnboarding {
		t.Errorf("got %+v", got)
	}
}

func TestService_ListRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	if _, _, err := svc.List(context.Background(), Filter{Status: "deleted"}, 20, 0); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v", err)
	}
}

func TestService_ArchiveConflictsWithConcurrentChange(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	ctx := context.Background()
	p := validPatient()
	_ = svc.Create(ctx, p)

	repo.afterRead = func(stored *Patient) { stored.Status = StatusActive }
	if _, err := svc.Archive(ctx, p.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("archive err = %v, want conflict", err)
	}
	if got := repo.store[p.ID].Status; got != StatusActive {
		t.Errorf("stored status = %s", got)
	}
}
