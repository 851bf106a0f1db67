// Package notification delivers appointment mail and text messages. Bodies
// come from a small template engine so the reminder and confirmation wording
// lives in one place.
package notification

import "context"

// Channel is the medium a template is written for.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// EmailSender delivers a plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Attachment is a file sent along with an email.
type Attachment struct {
	Name string
	Data []byte
}

// AttachmentSender is implemented by email senders that can attach files.
type AttachmentSender interface {
	EmailSender
	SendEmailWithAttachments(ctx context.Context, to, subject, body string, attachments ...Attachment) error
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}
