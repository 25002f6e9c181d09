// Package notify sends operational email alerts via SendGrid.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/finpanel/report-service/internal/model"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailConfig holds settings for the spam-flag alert sender.
type EmailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	ToAddress   string
	// SandboxMode when true validates requests without delivering mail.
	SandboxMode bool
}

// EmailNotifier emails the operations address when a report is
// auto-flagged as spam.
type EmailNotifier struct {
	cfg EmailConfig
}

// NewEmailNotifier returns a notifier, or nil when no API key or recipient
// is configured so callers can skip notification entirely.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.APIKey == "" || cfg.ToAddress == "" {
		return nil
	}
	return &EmailNotifier{cfg: cfg}
}

// NotifySpamFlagged sends the alert for one auto-flagged report. The body
// carries the assessment summary but never the raw description, which may
// itself be hostile content.
func (n *EmailNotifier) NotifySpamFlagged(ctx context.Context, rpt *model.WebReport) error {
	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromAddress)
	to := mail.NewEmail("", n.cfg.ToAddress)

	subject := fmt.Sprintf("Web report %s auto-flagged as spam", rpt.TicketID)
	message := mail.NewSingleEmail(from, subject, to, composeBody(rpt), "")

	if n.cfg.SandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	client := sendgrid.NewSendClient(n.cfg.APIKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func composeBody(rpt *model.WebReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Ticket:      %s\n", rpt.TicketID))
	b.WriteString(fmt.Sprintf("Submitted:   %s\n", rpt.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("Risk score:  %d\n", rpt.Assessment.TotalRiskScore))
	b.WriteString(fmt.Sprintf("Spam score:  %d\n", rpt.Assessment.SpamScore))
	b.WriteString(fmt.Sprintf("Malicious:   %d\n", rpt.Assessment.MaliciousPatternScore))
	if len(rpt.Assessment.ForbiddenWords) > 0 {
		b.WriteString(fmt.Sprintf("Keywords:    %s\n", strings.Join(rpt.Assessment.ForbiddenWords, ", ")))
	}
	b.WriteString("\nReview it in the admin panel.\n")
	return b.String()
}
