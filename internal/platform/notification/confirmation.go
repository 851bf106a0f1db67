package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const confirmationTimeout = 30 * time.Second

// ConfirmationMailer emails a booking confirmation with the PDF slip attached.
// Sends run in the background so the booking request is never held up by the
// mail relay.
type ConfirmationMailer struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

func NewConfirmationMailer(d *Dispatcher, logger zerolog.Logger) *ConfirmationMailer {
	return &ConfirmationMailer{
		dispatcher: d,
		logger:     logger.With().Str("component", "confirmation").Logger(),
	}
}

// Send queues the confirmation for b and returns immediately.
func (m *ConfirmationMailer) Send(ctx context.Context, b BookingDetails) {
	if b.PatientEmail == "" {
		m.logger.Warn().Int64("appointment_id", b.AppointmentID).Msg("patient has no email, confirmation skipped")
		return
	}
	ctx = context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, confirmationTimeout)
		defer cancel()
		if err := m.deliver(ctx, b); err != nil {
			m.logger.Error().Err(err).
				Int64("appointment_id", b.AppointmentID).
				Msg("failed to send booking confirmation")
			return
		}
		m.logger.Info().Int64("appointment_id", b.AppointmentID).Msg("booking confirmation sent")
	}()
}

func (m *ConfirmationMailer) deliver(ctx context.Context, b BookingDetails) error {
	var attachments []Attachment
	slip, err := RenderSlip(b)
	if err != nil {
		// The mail still goes out without the slip.
		m.logger.Warn().Err(err).Int64("appointment_id", b.AppointmentID).Msg("slip not attached")
	} else {
		attachments = append(attachments, Attachment{Name: SlipFileName(b.AppointmentID), Data: slip})
	}
	r := Recipient{Name: b.PatientName, Email: b.PatientEmail}
	return m.dispatcher.SendTemplate(ctx, TemplateAppointmentConfirmation, b.templateData(), r, attachments...)
}

// Wait blocks until every queued confirmation has finished.
func (m *ConfirmationMailer) Wait() {
	m.wg.Wait()
}
