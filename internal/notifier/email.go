package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/pkg/queue"
)

// EmailJobType is the queue message type carrying a rendered alert mail.
const EmailJobType = "email.alert"

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// Mail is a rendered message, also the queued job payload.
type Mail struct {
	AlertID string   `json:"alert_id"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Mailer delivers one rendered mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Email sends alerts by mail, directly or through the job queue when a
// publisher is set.
type Email struct {
	to     []string
	mailer Mailer
	queue  queue.QueueService
}

// NewEmail sends synchronously through mailer.
func NewEmail(to []string, mailer Mailer) *Email {
	return &Email{to: to, mailer: mailer}
}

// NewQueuedEmail hands rendered mails to q; an EmailJob worker delivers them.
func NewQueuedEmail(to []string, q queue.QueueService) *Email {
	return &Email{to: to, queue: q}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Notify(ctx context.Context, a models.Alert) error {
	m := Mail{AlertID: a.ID, To: e.to, Subject: Subject(a), Body: Body(a)}
	if e.queue != nil {
		if err := e.queue.PublishMessage(ctx, EmailJobType, m); err != nil {
			return fmt.Errorf("enqueue mail: %w", err)
		}
		return nil
	}
	return e.mailer.Send(ctx, m)
}

// SMTPMailer speaks plain SMTP with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if len(m.To) == 0 {
		return errors.New("smtp: no recipients")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(compose(s.cfg.From, m)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

func compose(from string, m Mail) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(m.To, ", ") + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}
