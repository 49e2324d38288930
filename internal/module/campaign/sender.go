package campaign

import (
	"context"

	"gopkg.in/gomail.v2"

	"github.com/postnow/server/internal/shared/config"
)

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends email over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates a sender from the email config section.
func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = cfg.FromName + " <" + cfg.FromAddress + ">"
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	return s.dialer.DialAndSend(m)
}
