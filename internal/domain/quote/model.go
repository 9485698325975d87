package quote

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// DefaultValidity applies when a quote is created without ValidUntil.
const DefaultValidity = 30 * 24 * time.Hour

// Quote prices a device against the patient's coverage. Amounts are in euro
// cents; CoveredCents is supplied by ops and PatientShareCents is derived.
type Quote struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patientId"`
	PrescriptionID    uuid.UUID  `json:"prescriptionId"`
	DeviceModel       string     `json:"deviceModel"`
	TotalCents        int64      `json:"totalCents"`
	CoveredCents      int64      `json:"coveredCents"`
	PatientShareCents int64      `json:"patientShareCents"`
	Status            Status     `json:"status"`
	ValidUntil        time.Time  `json:"validUntil"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DecidedAt         *time.Time `json:"decidedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Ref is the short reference quoted to patients.
func (q *Quote) Ref() string {
	return "Q-" + strings.ToUpper(q.ID.String()[:8])
}

func (q *Quote) expiredAt(now time.Time) bool {
	return now.After(q.ValidUntil)
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d EUR", c/100, c%100)
}

var schema = validation.Schema[*Quote]{
	{Name: "prescriptionId", Value: func(q *Quote) any { return q.PrescriptionID }, Rules: []validation.Rule{validation.Required()}},
	{Name: "deviceModel", Value: func(q *Quote) any { return q.DeviceModel }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(200)}},
	{Name: "totalCents", Value: func(q *Quote) any { return q.TotalCents }, Rules: []validation.Rule{validation.Min(0)}},
	{Name: "coveredCents", Value: func(q *Quote) any { return q.CoveredCents }, Rules: []validation.Rule{validation.Min(0)}},
}

func validate(q *Quote, now time.Time) error {
	details := schema.Check(q)
	if q.CoveredCents > q.TotalCents {
		details = append(details, apperr.Detail{Field: "coveredCents", Message: "coveredCents must not exceed totalCents"})
	}
	if !q.ValidUntil.After(now) {
		details = append(details, apperr.Detail{Field: "validUntil", Message: "validUntil must be in the future"})
	}
	if len(details) > 0 {
		return apperr.Invalid(details...)
	}
	return nil
}
