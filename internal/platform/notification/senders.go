package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMTPConfig configures SMTPSender. Username empty means no AUTH.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		host, _, err := net.SplitHostPort(s.cfg.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr %q: %w", s.cfg.Addr, err)
		}
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}
	msg := s.message(to, subject, body)
	if err := s.send(s.cfg.Addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(s.cfg.From))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerValue(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// headerValue strips line breaks so values cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// LogSender writes messages to the log instead of delivering them. It serves
// as both the email and SMS sender in development.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (l *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	l.logger.Info().Str("channel", string(ChannelEmail)).Str("to", MaskAddress(to)).
		Str("subject", subject).Msg("notification delivered to log")
	return nil
}

func (l *LogSender) SendSMS(_ context.Context, to, _ string) error {
	l.logger.Info().Str("channel", string(ChannelSMS)).Str("to", MaskAddress(to)).
		Msg("notification delivered to log")
	return nil
}

// MaskAddress keeps enough of an email or phone number to correlate log
// lines: "j***@example.com", "+336******78".
func MaskAddress(addr string) string {
	if local, domain, ok := strings.Cut(addr, "@"); ok {
		if local == "" {
			return "***@" + domain
		}
		return local[:1] + "***@" + domain
	}
	if len(addr) <= 6 {
		return strings.Repeat("*", len(addr))
	}
	return addr[:4] + strings.Repeat("*", len(addr)-6) + addr[len(addr)-2:]
}
