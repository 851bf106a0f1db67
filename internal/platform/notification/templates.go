package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template ids.
const (
	TemplateAppointmentReminder     = "appointment-reminder"
	TemplateAppointmentReminderSMS  = "appointment-reminder-sms"
	TemplateAppointmentConfirmation = "appointment-confirmation"
)

// Template is a message with {{key}} placeholders. SMS templates have no
// subject.
type Template struct {
	ID      string
	Channel Channel
	Subject string
	Body    string
}

// Rendered is a template with its placeholders filled in.
type Rendered struct {
	Channel Channel
	Subject string
	Body    string
}

var appointmentTemplates = []Template{
	{
		ID:      TemplateAppointmentReminder,
		Channel: ChannelEmail,
		Subject: "Reminder: your appointment on {{date}} at {{time}}",
		Body: "Hello {{patient_name}},\n\n" +
			"This is a reminder of your {{service_name}} appointment with {{doctor_name}} " +
			"on {{date}} at {{time}} ({{timezone}}).\n\n" +
			"If you cannot attend, please cancel or reschedule it from your account.",
	},
	{
		ID:      TemplateAppointmentReminderSMS,
		Channel: ChannelSMS,
		Body:    "{{patient_name}}, reminder: appointment with {{doctor_name}} on {{date}} at {{time}}.",
	},
	{
		ID:      TemplateAppointmentConfirmation,
		Channel: ChannelEmail,
		Subject: "Appointment confirmed: {{date}} at {{time}}",
		Body: "Hello {{patient_name}},\n\n" +
			"Your {{service_name}} appointment with {{doctor_name}} is confirmed for " +
			"{{date}} at {{time}}. Appointment number: {{appointment_id}}.\n\n" +
			"Your appointment slip is attached.",
	},
}

// TemplateEngine holds the known templates. It is safe for concurrent use.
type TemplateEngine struct {
	mu   sync.RWMutex
	byID map[string]Template
}

// NewTemplateEngine returns an engine preloaded with the appointment templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{byID: make(map[string]Template, len(appointmentTemplates))}
	for _, t := range appointmentTemplates {
		e.byID[t.ID] = t
	}
	return e
}

// RegisterTemplate adds t or replaces the template with the same id.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	e.byID[t.ID] = t
	e.mu.Unlock()
}

// IDs lists the registered template ids in order.
func (e *TemplateEngine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.byID))
	for id := range e.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render fills templateID with data. Placeholders without a value stay in
// the output untouched.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.byID[templateID]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("notification template %q is not registered", templateID)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return Rendered{
		Channel: t.Channel,
		Subject: r.Replace(t.Subject),
		Body:    r.Replace(t.Body),
	}, nil
}
