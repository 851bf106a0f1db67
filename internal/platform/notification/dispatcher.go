package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNoRecipient is returned when the rendered template's channel has no
// address to deliver to.
var ErrNoRecipient = errors.New("notification: no recipient")

// Recipient carries the addresses a message may be sent to.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Dispatcher renders templates and hands the result to the sender for the
// template's channel.
type Dispatcher struct {
	templates *TemplateEngine
	email     EmailSender
	sms       SMSSender
	logger    zerolog.Logger
}

// NewDispatcher wires the senders. sms may be nil when text messages are not
// configured; SMS templates then return an error.
func NewDispatcher(templates *TemplateEngine, email EmailSender, sms SMSSender, logger zerolog.Logger) *Dispatcher {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Dispatcher{
		templates: templates,
		email:     email,
		sms:       sms,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// SMSEnabled reports whether a text-message sender is configured.
func (d *Dispatcher) SMSEnabled() bool { return d.sms != nil }

// SendTemplate renders templateID with data and delivers it to r over the
// template's channel. Attachments are only honoured by email senders that
// implement AttachmentSender.
func (d *Dispatcher) SendTemplate(ctx context.Context, templateID string, data map[string]string, r Recipient, attachments ...Attachment) error {
	msg, err := d.templates.Render(templateID, data)
	if err != nil {
		return err
	}

	if msg.Channel == ChannelSMS {
		if d.sms == nil {
			return fmt.Errorf("template %q: sms sender not configured", templateID)
		}
		if r.Phone == "" {
			return ErrNoRecipient
		}
		return d.sms.SendSMS(ctx, r.Phone, msg.Body)
	}

	if d.email == nil {
		return fmt.Errorf("template %q: email sender not configured", templateID)
	}
	if r.Email == "" {
		return ErrNoRecipient
	}
	if len(attachments) > 0 {
		if as, ok := d.email.(AttachmentSender); ok {
			return as.SendEmailWithAttachments(ctx, r.Email, msg.Subject, msg.Body, attachments...)
		}
		d.logger.Warn().Str("template", templateID).Msg("email sender cannot attach files, sending body only")
	}
	return d.email.SendEmail(ctx, r.Email, msg.Subject, msg.Body)
}
