package patient

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Status string

const (
	StatusOnboarding Status = "onboarding"
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
)

// Patient is a wheelchair user followed by the service. UserSubject links
// the record to the identity-provider subject the patient signs in with.
type Patient struct {
	ID                uuid.UUID `json:"id"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	BirthDate         time.Time `json:"birthDate"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone,omitempty"`
	NIR               string    `json:"nir,omitempty"`
	CarteVitaleNumber string    `json:"carteVitaleNumber,omitempty"`
	AddressLine       string    `json:"addressLine,omitempty"`
	PostalCode        string    `json:"postalCode,omitempty"`
	City              string    `json:"city,omitempty"`
	InsurerCode       string    `json:"insurerCode,omitempty"`
	Status            Status    `json:"status"`
	UserSubject       string    `json:"userSubject,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Contact is what other modules need to reach a patient and check ownership.
type Contact struct {
	PatientID uuid.UUID
	Subject   string
	FirstName string
	Email     string
	Phone     string
}

func (p *Patient) Contact() *Contact {
	return &Contact{
		PatientID: p.ID,
		Subject:   p.UserSubject,
		FirstName: p.FirstName,
		Email:     p.Email,
		Phone:     p.Phone,
	}
}

// Filter narrows List. Query matches a prefix of the last name or email.
type Filter struct {
	Query  string
	Status Status
}

var postalCode = regexp.MustCompile(`^[0-9]{5}$`)

func schema(now func() time.Time) validation.Schema[*Patient] {
	return validation.Schema[*Patient]{
		{Name: "firstName", Value: func(p *Patient) any { return p.FirstName }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(100)}},
		{Name: "lastName", Value: func(p *Patient) any { return p.LastName }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(100)}},
		{Name: "birthDate", Value: func(p *Patient) any { return p.BirthDate }, Rules: []validation.Rule{validation.Required(), validation.Past(now)}},
		{Name: "email", Value: func(p *Patient) any { return p.Email }, Rules: []validation.Rule{validation.Required(), validation.Email(), validation.MaxLen(255)}},
		{Name: "phone", Value: func(p *Patient) any { return p.Phone }, Rules: []validation.Rule{validation.Phone()}},
		{Name: "nir", Value: func(p *Patient) any { return p.NIR }, Rules: []validation.Rule{validation.Digits(15)}},
		{Name: "carteVitaleNumber", Value: func(p *Patient) any { return p.CarteVitaleNumber }, Rules: []validation.Rule{validation.MaxLen(32)}},
		{Name: "addressLine", Value: func(p *Patient) any { return p.AddressLine }, Rules: []validation.Rule{validation.MaxLen(255)}},
		{Name: "postalCode", Value: func(p *Patient) any { return p.PostalCode }, Rules: []validation.Rule{validation.Pattern(postalCode, "must be 5 digits")}},
		{Name: "city", Value: func(p *Patient) any { return p.City }, Rules: []validation.Rule{validation.MaxLen(100)}},
		{Name: "insurerCode", Value: func(p *Patient) any { return p.InsurerCode }, Rules: []validation.Rule{validation.MaxLen(32)}},
	}
}

func (s Status) valid() bool {
	switch s {
	case StatusOnboarding, StatusActive, StatusArchived:
		return true
	}
	return false
}

// onboarding → active, and anything not yet archived → archived.
func (s Status) canMoveTo(to Status) bool {
	switch to {
	case StatusActive:
		return s == StatusOnboarding
	case StatusArchived:
		return s != StatusArchived
	}
	return false
}
