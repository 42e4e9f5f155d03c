// Package notification renders and delivers customer-facing ticket emails.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/gomail.v2"

	"github.com/spec-kit/support-ticketing/internal/config"
	"github.com/spec-kit/support-ticketing/internal/events"
)

// Email is a rendered message ready for delivery.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

// NewSMTPMailer builds a mailer from the notification settings.
func NewSMTPMailer(cfg config.NotificationConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:     cfg.EmailFrom,
		fromName: cfg.EmailFromName,
	}
}

// Message converts email into a gomail message.
func (m *SMTPMailer) Message(email Email) *gomail.Message {
	msg := gomail.NewMessage()
	if m.fromName != "" {
		msg.SetAddressHeader("From", m.from, m.fromName)
	} else {
		msg.SetHeader("From", m.from)
	}
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	if email.HTML != "" {
		msg.AddAlternative("text/html", email.HTML)
	}
	return msg
}

// Send dials the relay for every message.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.Message(email)); err != nil {
		return fmt.Errorf("send mail to %s: %w", email.To, err)
	}
	return nil
}

// userText strips markup from customer or agent supplied text and escapes
// what remains, so it can be embedded in HTML mail.
var userText = bluemonday.StrictPolicy()

// ComposeTicketEmail renders the customer email for event. It reports false
// for events that do not notify the customer: everything except ticket
// creation and staff replies.
func ComposeTicketEmail(event events.Event) (Email, bool) {
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		if strings.TrimSpace(payload.UserEmail) == "" {
			return Email{}, false
		}
		subject := fmt.Sprintf("[Ticket #%d] %s", event.TicketID, payload.Subject)
		text := fmt.Sprintf("We received your request \"%s\" and filed it as ticket #%d.\nA support agent will reply shortly.",
			payload.Subject, event.TicketID)
		html := fmt.Sprintf("<p>We received your request <strong>%s</strong> and filed it as ticket #%d.</p><p>A support agent will reply shortly.</p>",
			userText.Sanitize(payload.Subject), event.TicketID)
		return Email{To: payload.UserEmail, Subject: subject, HTML: html, Text: text}, true

	case events.TicketMessageAddedPayload:
		if !payload.SenderRole.IsStaff() || strings.TrimSpace(payload.UserEmail) == "" {
			return Email{}, false
		}
		subject := fmt.Sprintf("Re: [Ticket #%d] %s", event.TicketID, payload.Subject)
		text := fmt.Sprintf("Support replied to your ticket #%d:\n\n%s", event.TicketID, payload.BodyPreview)
		html := fmt.Sprintf("<p>Support replied to your ticket #%d:</p><blockquote>%s</blockquote>",
			event.TicketID, userText.Sanitize(payload.BodyPreview))
		return Email{To: payload.UserEmail, Subject: subject, HTML: html, Text: text}, true
	}
	return Email{}, false
}
