package notification

import (
	"context"
	"errors"
	"sync"
)

// EmailCall is one recorded email.
type EmailCall struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// SMSCall is one recorded text message.
type SMSCall struct {
	To   string
	Body string
}

// mockFailure returns the configured error when every send fails or when to
// is one of the failing recipients.
func mockFailure(all bool, msg string, failFor map[string]bool, to string) error {
	if !all && !failFor[to] {
		return nil
	}
	if msg == "" {
		msg = "send failed"
	}
	return errors.New(msg)
}

// MockEmailSender records emails instead of sending them. FailFor fails only
// the listed recipients.
type MockEmailSender struct {
	ShouldFail bool
	FailError  string
	FailFor    map[string]bool

	mu    sync.Mutex
	calls []EmailCall
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.SendEmailWithAttachments(ctx, to, subject, body)
}

func (m *MockEmailSender) SendEmailWithAttachments(_ context.Context, to, subject, body string, attachments ...Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body, Attachments: attachments})
	return mockFailure(m.ShouldFail, m.FailError, m.FailFor, to)
}

// Calls returns a snapshot of the recorded emails.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailCall(nil), m.calls...)
}

// MockSMSSender records text messages instead of sending them.
type MockSMSSender struct {
	ShouldFail bool
	FailError  string
	FailFor    map[string]bool

	mu    sync.Mutex
	calls []SMSCall
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	return mockFailure(m.ShouldFail, m.FailError, m.FailFor, to)
}

func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SMSCall(nil), m.calls...)
}
