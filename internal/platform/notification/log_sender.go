package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. The server
// falls back to it when no SMTP relay or Twilio account is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return s.SendEmailWithAttachments(ctx, to, subject, body)
}

func (s *LogSender) SendEmailWithAttachments(_ context.Context, to, subject, body string, attachments ...Attachment) error {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Name)
	}
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Strs("attachments", names).
		Msg("email not delivered: smtp is not configured")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().
		Str("to", to).
		Int("body_bytes", len(body)).
		Msg("sms not delivered: twilio is not configured")
	return nil
}
