package notifications

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

// EmailSender delivers the email channel through an email.EmailSender.
type EmailSender struct {
	mailer email.EmailSender
}

// NewEmailSender wraps a mailer as a channel Sender.
func NewEmailSender(mailer email.EmailSender) *EmailSender {
	return &EmailSender{mailer: mailer}
}

func (s *EmailSender) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	subject := msg.Content.Title
	if subject == "" {
		subject = msg.EventKey
	}
	body := msg.Content.HTML
	if body == "" && msg.Content.Text != "" {
		body = "<p>" + strings.ReplaceAll(html.EscapeString(msg.Content.Text), "\n", "<br>") + "</p>"
	}

	err := s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   msg.Address,
		Subject:  subject,
		BodyHTML: body,
		BodyText: msg.Content.Text,
		Tag:      msg.EventKey,
	})
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Status: StatusDelivered, At: time.Now()}, nil
}
