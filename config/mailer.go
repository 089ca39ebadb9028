package config

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// SMTPMailer sends HTML mail through the configured relay.
type SMTPMailer struct {
	cfg SMTP
}

// NewMailer returns nil when SMTP is not configured so callers can skip
// e-mail delivery entirely.
func NewMailer(cfg SMTP) *SMTPMailer {
	if cfg.Host == "" || cfg.From == "" {
		return nil
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendMail(to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if m == nil || m.cfg.Host == "" || m.cfg.From == "" {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Pass)

	// STARTTLS is mandatory on 587 for the common relays (Gmail, Office365).
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.SkipTLSVerify, // dev only
	}

	return d.DialAndSend(msg)
}
