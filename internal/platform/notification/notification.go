// Package notification delivers templated email through a durable outbox.
// Callers enqueue messages inside or after their own write; a Dispatcher
// drains the outbox in the background with retry and backoff.
package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
)

// TemplateAppointmentStatus is sent when staff approve or reject an appointment.
const TemplateAppointmentStatus = "appointment-status"

var (
	ErrUnknownTemplate = apperror.Validation("UnknownTemplate", "notification template not found")
	ErrNoRecipient     = apperror.Validation("NoRecipient", "notification recipient is required")
	ErrMessageNotFound = apperror.NotFound("NotificationNotFound", "notification not found")
	ErrNotFailed       = apperror.Conflict("NotificationNotFailed", "only failed notifications can be retried")
)

// ---------------------------------------------------------------------------
// Sender
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable email template. Subject and Body use {{key}}
// placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	e.templates[TemplateAppointmentStatus] = &Template{
		ID:      TemplateAppointmentStatus,
		Name:    "Appointment Status",
		Subject: "Your Appointment Status",
		Body: "<h2>Appointment Update</h2>" +
			"<p>Dear {{patient_name}}, your appointment status has been changed to {{status}}.</p>" +
			"<p><strong>Appointment ID:</strong> {{appointment_id}}</p>" +
			"<p><strong>Doctor:</strong> {{doctor_name}}</p>" +
			"<p><strong>Date &amp; Time:</strong> {{appointment_time}}</p>" +
			"<p><strong>Location:</strong> {{location}}</p>" +
			"<p><strong>Consultation Type:</strong> {{consultation_type}}</p>" +
			"<p>Thank you for using our service.</p>",
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Has reports whether a template is registered under id.
func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q: %w", templateID, ErrUnknownTemplate)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// AppointmentStatus is the payload of the appointment-status email.
type AppointmentStatus struct {
	AppointmentID    string `json:"appointment_id"`
	DoctorName       string `json:"doctor_name"`
	PatientName      string `json:"patient_name"`
	RecipientEmail   string `json:"recipient_email"`
	AppointmentTime  string `json:"appointment_time"`
	Location         string `json:"location"`
	ConsultationType string `json:"consultation_type"`
	Status           string `json:"status"`
}

// Data flattens the payload into template data. Values are HTML-escaped since
// the template body is HTML.
func (p AppointmentStatus) Data() map[string]string {
	return map[string]string{
		"appointment_id":    html.EscapeString(p.AppointmentID),
		"doctor_name":       html.EscapeString(p.DoctorName),
		"patient_name":      html.EscapeString(p.PatientName),
		"appointment_time":  html.EscapeString(p.AppointmentTime),
		"location":          html.EscapeString(p.Location),
		"consultation_type": html.EscapeString(p.ConsultationType),
		"status":            html.EscapeString(p.Status),
	}
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// Notifier writes messages to the outbox. It never talks to the mail server.
type Notifier struct {
	outbox    Outbox
	templates *TemplateEngine
	now       func() time.Time
}

func NewNotifier(outbox Outbox, templates *TemplateEngine) *Notifier {
	return &Notifier{outbox: outbox, templates: templates, now: time.Now}
}

// Enqueue stores a pending message due immediately and returns it.
func (n *Notifier) Enqueue(ctx context.Context, template, recipient string, data map[string]string) (*Message, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, ErrNoRecipient
	}
	if !n.templates.Has(template) {
		return nil, fmt.Errorf("template %q: %w", template, ErrUnknownTemplate)
	}
	if data == nil {
		data = map[string]string{}
	}

	now := n.now().UTC()
	m := &Message{
		ID:            uuid.New(),
		Template:      template,
		Recipient:     recipient,
		Data:          data,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := n.outbox.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	return m, nil
}

// NotifyAppointmentStatus enqueues the appointment-status email for p.
func (n *Notifier) NotifyAppointmentStatus(ctx context.Context, p AppointmentStatus) error {
	_, err := n.Enqueue(ctx, TemplateAppointmentStatus, p.RecipientEmail, p.Data())
	return err
}

// Retry moves a failed message back to pending with a fresh attempt budget.
func (n *Notifier) Retry(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := n.outbox.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusFailed {
		return nil, ErrNotFailed.WithMessage("notification %s is %s, not failed", id, m.Status)
	}
	if err := n.outbox.Requeue(ctx, id, n.now().UTC()); err != nil {
		return nil, err
	}
	return n.outbox.Get(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
