package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("notification queue is full")

// Enqueuer accepts messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, m Message) error
}

// Send queues m on q. Failures are logged and never returned to the caller.
func Send(ctx context.Context, q Enqueuer, m Message) {
	if q == nil {
		return
	}
	if err := q.Enqueue(ctx, m); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("template", m.Template).Msg("notification not queued")
	}
}

// Message asks for templateID to be delivered to every address set.
type Message struct {
	Template string
	Data     map[string]string
	Email    string
	Phone    string
}

// Stats counts deliveries per outcome.
type Stats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
	Queued  int `json:"queued"`
}

// Dispatcher queues messages and delivers them from Run.
type Dispatcher struct {
	email       EmailSender
	sms         SMSSender
	templates   *TemplateEngine
	logger      zerolog.Logger
	queue       chan Message
	maxAttempts int
	backoff     time.Duration

	mu    sync.Mutex
	stats Stats
}

type Option func(*Dispatcher)

// WithQueueSize sets the number of messages buffered before Enqueue fails.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Message, n) }
}

// WithRetry sets the attempts per channel and the base delay between them.
// The delay doubles after every failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = attempts
		d.backoff = backoff
	}
}

func NewDispatcher(email EmailSender, sms SMSSender, templates *TemplateEngine, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		email:       email,
		sms:         sms,
		templates:   templates,
		logger:      logger.With().Str("component", "notification").Logger(),
		queue:       make(chan Message, 256),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, o := range opts {
		o(d)
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Enqueue never blocks. A full queue drops the message and returns
// ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, m Message) error {
	if !d.templates.Has(m.Template) {
		return fmt.Errorf("template %q not found", m.Template)
	}
	if m.Email == "" && m.Phone == "" {
		return nil
	}
	select {
	case d.queue <- m:
		d.count(func(s *Stats) { s.Queued++ })
		return nil
	default:
		d.count(func(s *Stats) { s.Dropped++ })
		zerolog.Ctx(ctx).Warn().Str("template", m.Template).Msg("notification queue full, message dropped")
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled. Messages still queued
// at that point are counted as dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drop()
			return nil
		case m := <-d.queue:
			d.count(func(s *Stats) { s.Queued-- })
			d.deliver(ctx, m)
		}
	}
}

func (d *Dispatcher) drop() {
	for {
		select {
		case m := <-d.queue:
			d.count(func(s *Stats) { s.Queued--; s.Dropped++ })
			d.logger.Warn().Str("template", m.Template).Msg("dispatcher stopped, message dropped")
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	rendered, err := d.templates.Render(m.Template, m.Data)
	if err != nil {
		d.count(func(s *Stats) { s.Failed++ })
		d.logger.Error().Err(err).Str("template", m.Template).Msg("render notification")
		return
	}

	if m.Email != "" && d.email != nil {
		d.attempt(ctx, ChannelEmail, m.Template, func(ctx context.Context) error {
			return d.email.SendEmail(ctx, m.Email, rendered.Subject, rendered.Body)
		})
	}
	if m.Phone != "" && d.sms != nil && rendered.SMS != "" {
		d.attempt(ctx, ChannelSMS, m.Template, func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, m.Phone, rendered.SMS)
		})
	}
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, template string, send func(context.Context) error) {
	delay := d.backoff
	var err error
	for i := 1; i <= d.maxAttempts; i++ {
		if err = send(ctx); err == nil {
			d.count(func(s *Stats) { s.Sent++ })
			return
		}
		d.logger.Warn().Err(err).Str("channel", string(ch)).Str("template", template).
			Int("attempt", i).Msg("notification delivery failed")
		if i == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			d.count(func(s *Stats) { s.Failed++ })
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	d.count(func(s *Stats) { s.Failed++ })
	d.logger.Error().Err(err).Str("channel", string(ch)).Str("template", template).
		Msg("notification abandoned")
}

func (d *Dispatcher) count(f func(*Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
