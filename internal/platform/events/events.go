// Package events publishes appointment lifecycle events to RabbitMQ so other
// systems (calendars, analytics) can follow bookings without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentBooked      = "appointment.booked"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentCancelled   = "appointment.cancelled"
)

// Event describes one committed change to an appointment. Previous is set only
// for reschedules.
type Event struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	AppointmentID int64      `json:"appointment_id"`
	DoctorID      int64      `json:"doctor_id"`
	PatientID     int64      `json:"patient_id"`
	ServiceID     int64      `json:"service_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Previous      *time.Time `json:"previous_scheduled_at,omitempty"`
}

// NewEvent stamps a fresh id and the occurrence time.
func NewEvent(eventType string, now time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: now.UTC(),
	}
}

// Encode renders the event as the JSON message body.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return b, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event. It is used when AMQP_URL is empty.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
