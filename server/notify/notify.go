// Package notify delivers guardian alerts outside Mattermost over SMS and email.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"golang.org/x/time/rate"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/formatter"
)

// Logger is the logging surface used by the notifier.
// *pluginapi.LogService satisfies it.
type Logger interface {
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
	Error(message string, keyValuePairs ...interface{})
}

// SMSSender sends a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailSender sends a single email with plain and HTML bodies.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, plain, htmlBody string) error
}

// Default per-channel limits, in messages per minute.
const (
	DefaultSMSPerMinute   = 30
	DefaultEmailPerMinute = 60
	defaultBurst          = 10
)

// Notifier fans an alert out to every configured guardian phone and email.
type Notifier struct {
	sms         SMSSender
	email       EmailSender
	phones      []string
	emails      []string
	smsLimiter  *rate.Limiter
	mailLimiter *rate.Limiter
	logger      Logger
}

// New builds a notifier from config. Channels whose credentials or recipients
// are missing are disabled.
func New(cfg Config, logger Logger) *Notifier {
	n := &Notifier{
		phones: cfg.GuardianPhones,
		emails: cfg.GuardianEmails,
		logger: logger,
	}
	if cfg.SMSEnabled() {
		n.sms = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	}
	if cfg.EmailEnabled() {
		n.email = NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail)
	}
	n.initializeRateLimiters(DefaultSMSPerMinute, DefaultEmailPerMinute)
	return n
}

// NewWithSenders builds a notifier over explicit senders. A nil sender
// disables its channel.
func NewWithSenders(sms SMSSender, email EmailSender, phones, emails []string, logger Logger) *Notifier {
	n := &Notifier{
		sms:    sms,
		email:  email,
		phones: phones,
		emails: emails,
		logger: logger,
	}
	n.initializeRateLimiters(DefaultSMSPerMinute, DefaultEmailPerMinute)
	return n
}

func (n *Notifier) initializeRateLimiters(smsPerMinute, emailPerMinute int) {
	n.smsLimiter = rate.NewLimiter(rate.Limit(smsPerMinute)/60, defaultBurst)
	n.mailLimiter = rate.NewLimiter(rate.Limit(emailPerMinute)/60, defaultBurst)
}

// Enabled reports whether any delivery channel is configured.
func (n *Notifier) Enabled() bool {
	return n.smsActive() || n.emailActive()
}

func (n *Notifier) smsActive() bool {
	return n.sms != nil && len(n.phones) > 0
}

func (n *Notifier) emailActive() bool {
	return n.email != nil && len(n.emails) > 0
}

// Notify sends the alert to every guardian. Debriefs go out over email only.
//
// Each recipient is attempted independently; the returned error summarizes
// how many deliveries failed.
func (n *Notifier) Notify(ctx context.Context, a alert.Alert) error {
	var attempted, failed int

	if n.smsActive() && a.Kind != alert.KindDebrief {
		body := formatter.PlainText(a)
		for _, phone := range n.phones {
			attempted++
			if !n.smsLimiter.Allow() {
				failed++
				n.logger.Warn("SMS rate limit exceeded, skipping guardian", "incidentId", a.IncidentID, "kind", string(a.Kind))
				continue
			}
			if err := n.sms.SendSMS(ctx, phone, body); err != nil {
				failed++
				n.logger.Error("Failed to send guardian SMS", "incidentId", a.IncidentID, "error", err.Error())
			}
		}
	}

	if n.emailActive() {
		subject := formatter.Headline(a)
		plain := formatter.PlainText(a)
		htmlBody := renderHTML(plain)
		for _, addr := range n.emails {
			attempted++
			if !n.mailLimiter.Allow() {
				failed++
				n.logger.Warn("Email rate limit exceeded, skipping guardian", "incidentId", a.IncidentID, "kind", string(a.Kind))
				continue
			}
			if err := n.email.SendEmail(ctx, addr, subject, plain, htmlBody); err != nil {
				failed++
				n.logger.Error("Failed to send guardian email", "incidentId", a.IncidentID, "error", err.Error())
			}
		}
	}

	if attempted > 0 {
		n.logger.Info("Guardian notifications sent", "incidentId", a.IncidentID, "kind", string(a.Kind),
			"attempted", attempted, "failed", failed)
	}

	if failed > 0 {
		return fmt.Errorf("failed to notify %d of %d guardian recipients", failed, attempted)
	}
	return nil
}

// renderHTML wraps the plain-text body for email clients.
func renderHTML(plain string) string {
	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return "<p>" + strings.Join(lines, "<br>") + "</p>"
}
