// Package mailer delivers transactional email out-of-band.
package mailer

import (
	"context"
	"log/slog"
	"time"

	"greenroom/internal/middleware"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Sender delivers a single email. Delivery is best-effort from the caller's
// point of view; a failed send surfaces as an error but is never retried here.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Mailgun sends email through the Mailgun API.
type Mailgun struct {
	Domain string
	APIKey string
	Sender string
}

// NewMailgun returns a Mailgun-backed Sender.
func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{Domain: domain, APIKey: apiKey, Sender: sender}
}

// Send sends an email via Mailgun. html is optional; if provided it will be used as HTML body.
func (m *Mailgun) Send(ctx context.Context, to, subject, text, html string) error {
	client := mg.NewMailgun(m.Domain, m.APIKey)
	msg := client.NewMessage(m.Sender, subject, text, to)
	if html != "" {
		msg.SetHtml(html)
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, _, err := client.Send(c, msg)
	return err
}

// LogSender logs instead of sending. Used in development and tests where no
// Mailgun credentials are configured.
type LogSender struct{}

// Send logs the message that would have been delivered.
func (LogSender) Send(ctx context.Context, to, subject, text, _ string) error {
	middleware.Logger.InfoContext(ctx, "mail (not sent, log sender)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("text", text),
	)
	return nil
}
