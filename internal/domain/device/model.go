package device

import (
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Status string

const (
	StatusOrdered     Status = "ordered"
	StatusDelivered   Status = "delivered"
	StatusInService   Status = "in_service"
	StatusUnderRepair Status = "under_repair"
	StatusRetired     Status = "retired"
)

// Device maps to the devices table: one wheelchair supplied against an
// accepted quote.
type Device struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patientId"`
	QuoteID      uuid.UUID  `json:"quoteId"`
	SerialNumber string     `json:"serialNumber"`
	Model        string     `json:"model"`
	Manufacturer string     `json:"manufacturer"`
	Status       Status     `json:"status"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	RetiredAt    *time.Time `json:"retiredAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// transitions lists the forward moves of the lifecycle. Retirement is allowed
// from every non-retired state and is handled in CanMoveTo.
var transitions = map[Status][]Status{
	StatusOrdered:     {StatusDelivered},
	StatusDelivered:   {StatusInService},
	StatusInService:   {StatusUnderRepair},
	StatusUnderRepair: {StatusInService},
}

func (s Status) Valid() bool {
	switch s {
	case StatusOrdered, StatusDelivered, StatusInService, StatusUnderRepair, StatusRetired:
		return true
	}
	return false
}

func (s Status) CanMoveTo(to Status) bool {
	if s == StatusRetired {
		return false
	}
	if to == StatusRetired {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

var schema = validation.Schema[*Device]{
	{Name: "quoteId", Value: func(d *Device) any { return d.QuoteID }, Rules: []validation.Rule{validation.Required()}},
	{Name: "serialNumber", Value: func(d *Device) any { return d.SerialNumber }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(64)}},
	{Name: "model", Value: func(d *Device) any { return d.Model }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(200)}},
	{Name: "manufacturer", Value: func(d *Device) any { return d.Manufacturer }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(200)}},
}
