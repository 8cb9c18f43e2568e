package escalation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/relaydesk/relaydesk/pkg/logging"
)

// EmailConfig holds SendGrid settings for staff alerts.
type EmailConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	StaffEmail string
}

// EmailNotifier alerts the support team by email when a conversation is
// escalated. Returns nil from NewEmailNotifier when no API key is set, which
// callers treat as "notifications disabled".
type EmailNotifier struct {
	client     *sendgrid.Client
	fromEmail  string
	fromName   string
	staffEmail string
	logger     *logging.Logger
}

// NewEmailNotifier creates a SendGrid-backed staff notifier.
func NewEmailNotifier(cfg EmailConfig, logger *logging.Logger) *EmailNotifier {
	if cfg.APIKey == "" || cfg.StaffEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Relay Desk"
	}
	return &EmailNotifier{
		client:     sendgrid.NewSendClient(cfg.APIKey),
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		staffEmail: cfg.StaffEmail,
		logger:     logger,
	}
}

// NotifyEscalation emails the support team about rec.
func (n *EmailNotifier) NotifyEscalation(ctx context.Context, rec Record) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("escalation: email notifier not configured")
	}

	subject, body := escalationEmail(rec)
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("Support Team", n.staffEmail)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		n.logger.Error("sendgrid send failed", "error", err, "to", n.staffEmail)
		return fmt.Errorf("escalation: sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		n.logger.Error("sendgrid returned error status",
			"status", resp.StatusCode, "body", resp.Body, "to", n.staffEmail)
		return fmt.Errorf("escalation: sendgrid returned status %d", resp.StatusCode)
	}

	n.logger.Info("escalation email sent", "to", n.staffEmail, "identifier", rec.Identifier)
	return nil
}

func escalationEmail(rec Record) (subject, body string) {
	name := rec.CustomerName
	if name == "" {
		name = rec.Identifier
	}
	subject = fmt.Sprintf("Human needed: conversation with %s", name)

	var b strings.Builder
	fmt.Fprintf(&b, "A customer conversation needs a human reply.\n\n")
	fmt.Fprintf(&b, "Customer: %s\n", name)
	fmt.Fprintf(&b, "Identifier: %s\n", rec.Identifier)
	if rec.ThreadID != "" {
		fmt.Fprintf(&b, "Hub thread: %s\n", rec.ThreadID)
	}
	if rec.ExternalRef != "" {
		fmt.Fprintf(&b, "Reference: %s\n", rec.ExternalRef)
	}
	fmt.Fprintf(&b, "Escalated at: %s\n", rec.EscalatedAt.Format("2006-01-02 15:04:05 MST"))
	if len(rec.History) > 0 {
		fmt.Fprintf(&b, "\nRecent messages:\n")
		for _, line := range rec.History {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return subject, b.String()
}
