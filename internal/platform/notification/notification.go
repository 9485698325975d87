// Package notification delivers patient-facing email and SMS messages. Domain
// services enqueue a Message naming a template; a Dispatcher worker renders it
// and hands it to the senders, retrying provider failures a bounded number of
// times.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Channel is the medium a message is delivered on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template is a notification template. Subject and Body are used for email,
// SMS for text messages; an empty SMS means the template is email-only.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SMS     string `json:"sms,omitempty"`
}

// Built-in template IDs.
const (
	TemplateQuoteSent            = "quote-sent"
	TemplateTicketStatus         = "ticket-status"
	TemplatePrescriptionReviewed = "prescription-reviewed"
)

// Rendered is a template filled with data.
type Rendered struct {
	Subject string
	Body    string
	SMS     string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TemplateQuoteSent,
		Subject: "Your wheelchair quote {{quote_ref}}",
		Body: "Hello {{patient_name}},\n\nYour quote for the {{device_model}} is ready. " +
			"Total: {{total}}, covered by your insurer: {{covered}}, remaining at your charge: {{patient_share}}.\n" +
			"It is valid until {{valid_until}}. Log in to accept or decline it.",
		SMS: "Rollcare: your quote for the {{device_model}} is ready ({{patient_share}} at your charge). Valid until {{valid_until}}.",
	},
	{
		ID:      TemplateTicketStatus,
		Subject: "Service request {{ticket_ref}}: {{status}}",
		Body:    "Hello {{patient_name}},\n\nYour {{category}} request {{ticket_ref}} is now {{status}}.{{details}}",
		SMS:     "Rollcare: your {{category}} request {{ticket_ref}} is now {{status}}.",
	},
	{
		ID:      TemplatePrescriptionReviewed,
		Subject: "Your prescription has been {{outcome}}",
		Body:    "Hello {{patient_name}},\n\nThe prescription issued by {{prescriber_name}} has been {{outcome}}.{{details}}",
	},
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

func (e *TemplateEngine) Has(templateID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[templateID]
	return ok
}

// Render performs {{key}} replacement. Keys present in the template but
// absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return Rendered{
		Subject: r.Replace(t.Subject),
		Body:    r.Replace(t.Body),
		SMS:     r.Replace(t.SMS),
	}, nil
}
