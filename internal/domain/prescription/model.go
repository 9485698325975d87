package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

type Category string

const (
	CategoryManual    Category = "manual"
	CategoryElectric  Category = "electric"
	CategorySport     Category = "sport"
	CategoryPediatric Category = "pediatric"
)

// MaxAge is how long after issuance a prescription can still be verified.
const MaxAge = 365 * 24 * time.Hour

// Prescription is a physician's order for a wheelchair. PrescriberID is the
// 11-digit RPPS number of the prescriber.
type Prescription struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patientId"`
	PrescriberName  string     `json:"prescriberName"`
	PrescriberID    string     `json:"prescriberId"`
	IssuedAt        time.Time  `json:"issuedAt"`
	DeviceCategory  Category   `json:"deviceCategory"`
	Notes           string     `json:"notes,omitempty"`
	DocumentKey     string     `json:"documentKey,omitempty"`
	Status          Status     `json:"status"`
	VerifiedBy      string     `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// DocumentURL is a presigned transfer URL for the prescription scan.
type DocumentURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func schema(now func() time.Time) validation.Schema[*Prescription] {
	return validation.Schema[*Prescription]{
		{Name: "patientId", Value: func(p *Prescription) any { return p.PatientID }, Rules: []validation.Rule{validation.Required()}},
		{Name: "prescriberName", Value: func(p *Prescription) any { return p.PrescriberName }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(200)}},
		{Name: "prescriberId", Value: func(p *Prescription) any { return p.PrescriberID }, Rules: []validation.Rule{validation.Required(), validation.Digits(11)}},
		{Name: "issuedAt", Value: func(p *Prescription) any { return p.IssuedAt }, Rules: []validation.Rule{validation.Required(), validation.Past(now)}},
		{Name: "deviceCategory", Value: func(p *Prescription) any { return string(p.DeviceCategory) }, Rules: []validation.Rule{
			validation.Required(),
			validation.OneOf(string(CategoryManual), string(CategoryElectric), string(CategorySport), string(CategoryPediatric)),
		}},
		{Name: "notes", Value: func(p *Prescription) any { return p.Notes }, Rules: []validation.Rule{validation.MaxLen(2000)}},
	}
}
