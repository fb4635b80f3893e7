package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/pkg/config"
)

// Message is one outgoing email, already rendered.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a rendered message. SMTP, MailerSend and the dev logger
// implement it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type ContactMessage struct {
	Name    string
	Email   string
	Message string
}

type VerificationMessage struct {
	UserID int64
	Email  string
	Name   string
	Token  string
}

type ResetMessage struct {
	Email string
	Token string
}

// Dispatcher is what the account service calls. Every failure wraps
// domain.ErrDispatch.
type Dispatcher interface {
	SendContact(ctx context.Context, msg ContactMessage) error
	SendVerification(ctx context.Context, msg VerificationMessage) error
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Links struct {
	APIURL          string
	FrontendURL     string
	ContactInbox    string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

type Notifier struct {
	sender Sender
	links  Links
}

func NewNotifier(sender Sender, links Links) *Notifier {
	return &Notifier{sender: sender, links: links}
}

// VerificationURL is the API endpoint the user opens from the email.
func (n *Notifier) VerificationURL(token string) string {
	return n.links.APIURL + "/verify/" + url.PathEscape(token)
}

// ResetURL points at the frontend page that posts the new password.
func (n *Notifier) ResetURL(token string) string {
	return n.links.FrontendURL + "/reset-password/" + url.PathEscape(token)
}

func (n *Notifier) SendContact(ctx context.Context, msg ContactMessage) error {
	html, err := render("contact.html", msg)
	if err != nil {
		return err
	}
	return n.send(ctx, Message{
		To:      n.links.ContactInbox,
		Subject: "Contact form: " + msg.Name,
		Text:    fmt.Sprintf("From: %s <%s>\n\n%s", msg.Name, msg.Email, msg.Message),
		HTML:    html,
	})
}

func (n *Notifier) SendVerification(ctx context.Context, msg VerificationMessage) error {
	link := n.VerificationURL(msg.Token)
	html, err := render("verification.html", map[string]any{
		"Name": msg.Name,
		"URL":  link,
		"TTL":  humanDuration(n.links.VerificationTTL),
	})
	if err != nil {
		return err
	}
	return n.send(ctx, Message{
		To:      msg.Email,
		ToName:  msg.Name,
		Subject: "Verify your Parcel Bookings account",
		Text:    "Please verify your email by opening this link: " + link,
		HTML:    html,
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	link := n.ResetURL(msg.Token)
	html, err := render("password_reset.html", map[string]any{
		"Email": msg.Email,
		"URL":   link,
		"TTL":   humanDuration(n.links.ResetTTL),
	})
	if err != nil {
		return err
	}
	return n.send(ctx, Message{
		To:      msg.Email,
		Subject: "Reset your Parcel Bookings password",
		Text:    "Reset your password here: " + link,
		HTML:    html,
	})
}

func (n *Notifier) send(ctx context.Context, m Message) error {
	if err := n.sender.Send(ctx, m); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDispatch, err)
	}
	return nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("%w: render %s: %w", domain.ErrDispatch, name, err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0 && d >= time.Hour:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

// NewSender picks the transport named by cfg.Provider.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.From, cfg.FromName), nil
	case "mailersend":
		ms, err := NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From)
		if err != nil {
			return nil, err
		}
		return ms, nil
	case "dev", "":
		return NewDevMailer(), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
