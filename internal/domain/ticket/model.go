package ticket

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/validation"
)

type Category string

const (
	CategoryRepair      Category = "repair"
	CategoryMaintenance Category = "maintenance"
	CategoryAdjustment  Category = "adjustment"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Ticket is a service or maintenance request on a patient's device.
type Ticket struct {
	ID           uuid.UUID  `json:"id"`
	DeviceID     uuid.UUID  `json:"deviceId"`
	PatientID    uuid.UUID  `json:"patientId"`
	Category     Category   `json:"category"`
	Priority     Priority   `json:"priority"`
	Status       Status     `json:"status"`
	Description  string     `json:"description"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
	Resolution   string     `json:"resolution,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (t *Ticket) Ref() string {
	return "T-" + strings.ToUpper(t.ID.String()[:8])
}

// Active reports whether the ticket still needs work.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusScheduled || s == StatusInProgress
}

func (s Status) Valid() bool {
	return s.Active() || s == StatusResolved || s == StatusClosed
}

var transitions = map[Status][]Status{
	StatusOpen:       {StatusScheduled, StatusInProgress, StatusClosed},
	StatusScheduled:  {StatusScheduled, StatusInProgress, StatusClosed},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed, StatusInProgress},
}

func (s Status) CanMoveTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Filter narrows List.
type Filter struct {
	Status   Status
	DeviceID uuid.UUID
}

var schema = validation.Schema[*Ticket]{
	{Name: "deviceId", Value: func(t *Ticket) any { return t.DeviceID }, Rules: []validation.Rule{validation.Required()}},
	{Name: "category", Value: func(t *Ticket) any { return string(t.Category) }, Rules: []validation.Rule{
		validation.Required(),
		validation.OneOf(string(CategoryRepair), string(CategoryMaintenance), string(CategoryAdjustment)),
	}},
	{Name: "priority", Value: func(t *Ticket) any { return string(t.Priority) }, Rules: []validation.Rule{
		validation.OneOf(string(PriorityLow), string(PriorityNormal), string(PriorityUrgent)),
	}},
	{Name: "description", Value: func(t *Ticket) any { return t.Description }, Rules: []validation.Rule{validation.Required(), validation.MaxLen(4000)}},
}
