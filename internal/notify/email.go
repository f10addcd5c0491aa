package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/timmy/examforge/internal/domain"
)

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails a batch summary to the requested recipients.
type EmailNotifier struct {
	from   string
	sender mailSender
}

// NewEmailNotifier creates an EmailNotifier backed by an SMTP dialer.
func NewEmailNotifier(cfg *SMTPConfig) *EmailNotifier {
	return &EmailNotifier{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *EmailNotifier) Name() string { return "email" }

// Notify sends one message addressed to every recipient in opts.Emails.
func (n *EmailNotifier) Notify(_ context.Context, ev *Event, opts domain.NotificationOptions) error {
	if len(opts.Emails) == 0 {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", opts.Emails...)
	msg.SetHeader("Subject", subject(ev))
	msg.SetBody("text/plain", emailBody(ev))

	if err := n.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func emailBody(ev *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s finished with status %s.\n\n", ev.BatchID, ev.Status)
	fmt.Fprintf(&b, "Total:     %d\n", ev.Total)
	fmt.Fprintf(&b, "Completed: %d\n", ev.Completed)
	fmt.Fprintf(&b, "Failed:    %d\n", ev.Failed)
	if ev.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped:   %d\n", ev.Skipped)
	}
	if ev.OutputDir != "" {
		fmt.Fprintf(&b, "Output:    %s\n", ev.OutputDir)
	}
	if ev.StartedAt != nil && ev.FinishedAt != nil {
		fmt.Fprintf(&b, "Duration:  %s\n", ev.FinishedAt.Sub(*ev.StartedAt).Round(time.Millisecond))
	}
	if len(ev.FileURLs) > 0 {
		b.WriteString("\nPublished documents:\n")
		for _, u := range ev.FileURLs {
			fmt.Fprintf(&b, "  %s\n", u)
		}
	}
	if len(ev.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range ev.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	return b.String()
}
