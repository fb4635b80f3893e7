package mailer

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

// NewSMTPMailer builds a gomail dialer. With no user set (Mailpit on 1025)
// no auth is attempted.
func NewSMTPMailer(host string, port int, user, pass, from, fromName string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(strings.TrimSpace(host), port, strings.TrimSpace(user), strings.TrimSpace(pass)),
		from:   strings.TrimSpace(from),
		name:   fromName,
	}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("empty recipient email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	if msg.ToName != "" {
		m.SetAddressHeader("To", to, msg.ToName)
	} else {
		m.SetHeader("To", to)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			m.AddAlternative("text/html", msg.HTML)
		}
	} else {
		m.SetBody("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
