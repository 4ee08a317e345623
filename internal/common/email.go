package common

// EmailMessage carries a single outbound email. CC, BCC, and attachments are
// optional; the mail provider decides how attachments are encoded.
type EmailMessage struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	HTMLBody    string
	ReplyTo     string
	Attachments []EmailAttachment
}

// EmailAttachment is an inline attachment payload.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EmailSender defines the contract for sending emails. Callers treat a send as
// fire-and-forget: a failure is surfaced but never retried here.
type EmailSender interface {
	Send(msg EmailMessage) error
}

// InMemoryEmail provides a test-friendly email sender that records messages.
type InMemoryEmail struct {
	Outbox []EmailMessage
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(msg EmailMessage) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, msg)
	return nil
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(EmailMessage) error { return nil }
