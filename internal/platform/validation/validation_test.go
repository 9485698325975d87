package validation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

type signup struct {
	Name     string
	Email    string
	Phone    *string
	NIR      string
	Kind     string
	Born     time.Time
	Owner    uuid.UUID
	Quantity int64
}

var now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

var signupSchema = Schema[*signup]{
	{Name: "name", Value: func(s *signup) any { return s.Name }, Rules: []Rule{Required(), MaxLen(5)}},
	{Name: "email", Value: func(s *signup) any { return s.Email }, Rules: []Rule{Required(), Email()}},
	{Name: "phone", Value: func(s *signup) any { return s.Phone }, Rules: []Rule{Phone()}},
	{Name: "nir", Value: func(s *signup) any { return s.NIR }, Rules: []Rule{Digits(15)}},
	{Name: "kind", Value: func(s *signup) any { return s.Kind }, Rules: []Rule{OneOf("manual", "electric")}},
	{Name: "born", Value: func(s *signup) any { return s.Born }, Rules: []Rule{Past(now)}},
	{Name: "owner", Value: func(s *signup) any { return s.Owner }, Rules: []Rule{Required()}},
	{Name: "quantity", Value: func(s *signup) any { return s.Quantity }, Rules: []Rule{Min(1)}},
}

func TestSchema_Valid(t *testing.T) {
	phone := "+33612345678"
	s := &signup{
		Name:     "Ana",
		Email:    "ana@example.com",
		Phone:    &phone,
		NIR:      "185057800608436",
		Kind:     "manual",
		Born:     time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC),
		Owner:    uuid.New(),
		Quantity: 1,
	}
	if err := signupSchema.Validate(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchema_OptionalFieldsSkipFormatRules(t *testing.T) {
	s := &signup{Name: "Ana", Email: "ana@example.com", Owner: uuid.New(), Quantity: 2}
	if err := signupSchema.Validate(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchema_ReportsEveryViolationInOrder(t *testing.T) {
	phone := "0612"
	s := &signup{
		Name:     "Anastasia",
		Email:    "not-an-email",
		Phone:    &phone,
		NIR:      "12",
		Kind:     "rocket",
		Born:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Quantity: 0,
	}
	err := signupSchema.Validate(s)
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Code != "VALIDATION_ERROR" || ae.Status != 400 || ae.Message != "Validation failed" {
		t.Errorf("got %s/%d/%q", ae.Code, ae.Status, ae.Message)
	}
	var fields []string
	for _, d := range ae.Details {
		fields = append(fields, d.Field)
	}
	want := []string{"name", "email", "phone", "nir", "kind", "born", "owner", "quantity"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if ae.Details[0].Message != "name must be at most 5 characters" {
		t.Errorf("message = %q", ae.Details[0].Message)
	}
}

func TestRequired_OneViolationPerField(t *testing.T) {
	s := &signup{Owner: uuid.New(), Quantity: 1}
	details := signupSchema.Check(s)
	if len(details) != 2 {
		t.Fatalf("expected 2 violations (name, email), got %d: %+v", len(details), details)
	}
	if details[1].Message != "email is required" {
		t.Errorf("message = %q", details[1].Message)
	}
}

func TestDate(t *testing.T) {
	d, err := Date("birthDate", "1980-05-01")
	if err != nil || !d.Equal(time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("d=%v err=%v", d, err)
	}
	if d, err := Date("birthDate", ""); err != nil || !d.IsZero() {
		t.Errorf("empty: d=%v err=%v", d, err)
	}
	_, err = Date("birthDate", "01/05/1980")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindValidation || len(ae.Details) != 1 || ae.Details[0].Field != "birthDate" {
		t.Errorf("err = %v", err)
	}
}
