package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// EmailConfig holds SMTP connection details and the recipient.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	To       string
	Username string
	Password string
}

// EmailSink sends each event as a plain-text email.
type EmailSink struct {
	cfg EmailConfig
}

func NewEmailSink(cfg EmailConfig) *EmailSink {
	return &EmailSink{cfg: cfg}
}

func (s *EmailSink) Channel() string { return "email" }

func (s *EmailSink) Notify(ctx context.Context, ev Event) error {
	ctx, span := telemetry.Tracer("notify").Start(ctx, "notify.email")
	defer span.End()

	if s.cfg.To == "" {
		err := errors.New("email sink has no recipient configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing recipient")
		return err
	}
	span.SetAttributes(
		attribute.String("email.to", s.cfg.To),
		attribute.String("event.kind", string(ev.Kind)),
	)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := buildMIME(s.cfg.From, s.cfg.To, ev.Subject(), ev.Body())

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	// smtp.SendMail takes no context, so it runs aside while we wait on ctx.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.cfg.From, []string{s.cfg.To}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "smtp send failed")
			return fmt.Errorf("smtp send to %s: %w", s.cfg.To, err)
		}
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("email send timed out: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		return err
	}
}

func buildMIME(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body,
	))
}
