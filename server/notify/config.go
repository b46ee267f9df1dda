package notify

import "strings"

// Config holds the credentials and recipients for guardian notifications.
type Config struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	GuardianPhones   []string

	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string
	GuardianEmails    []string
}

// SMSEnabled reports whether Twilio is fully configured.
func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != "" && len(c.GuardianPhones) > 0
}

// EmailEnabled reports whether SendGrid is fully configured.
func (c Config) EmailEnabled() bool {
	return c.SendGridAPIKey != "" && c.SendGridFromEmail != "" && len(c.GuardianEmails) > 0
}

// ParseList splits a comma or newline separated setting into trimmed,
// non-empty entries.
func ParseList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
