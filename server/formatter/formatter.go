package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Alert colors
const (
	ColorSOS       = "#FF0000" // Red 🔴
	ColorStandDown = "#2EB886" // Green 🟢
	ColorDebrief   = "#FF9900" // Orange 🟠
	ColorUnknown   = "#808080" // Gray ⚪
)

// Risk level emojis
const (
	EmojiCritical = "🔴"
	EmojiHigh     = "🟠"
	EmojiMedium   = "🟡"
	EmojiLow      = "🟢"
	EmojiUnknown  = "⚪"
)

// maxSummaryLength caps the report summary shown in a post
const maxSummaryLength = 500

// FormatAlert converts an alert.Alert into a Mattermost SlackAttachment with
// color coding and structured fields.
func FormatAlert(a alert.Alert) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Text:  fmt.Sprintf("#### %s", Headline(a)),
		Color: getAlertColor(a.Kind),
	}

	var fields []*model.SlackAttachmentField

	// 1. Time + Location (side by side)
	fields = append(fields, &model.SlackAttachmentField{
		Title: "Time",
		Value: formatTime(a.Time),
		Short: true,
	})

	if a.Location != nil {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Location",
			Value: formatLocation(a.Location),
			Short: true,
		})
	}

	// 2. Contact details (SOS only)
	if a.Kind == alert.KindSOS {
		fields = append(fields,
			&model.SlackAttachmentField{Title: "Phone", Value: a.Phone, Short: true},
			&model.SlackAttachmentField{Title: "ID", Value: a.MaskedID, Short: true},
		)
	}

	// 3. Debrief reason
	if a.Reason != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Reason",
			Value: a.Reason,
			Short: false,
		})
	}

	// 4. Intelligence summary and recommendations
	if a.Report != nil && a.Kind != alert.KindDebrief {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Risk",
			Value: formatRisk(a.Report.RiskLevel),
			Short: true,
		})
		if a.Report.CityName != "" {
			fields = append(fields, &model.SlackAttachmentField{
				Title: "Area",
				Value: a.Report.CityName,
				Short: true,
			})
		}
		if a.Report.Summary != "" {
			fields = append(fields, &model.SlackAttachmentField{
				Title: "Situation",
				Value: truncateText(a.Report.Summary, maxSummaryLength),
				Short: false,
			})
		}
		if len(a.Report.Recommendations) > 0 {
			fields = append(fields, &model.SlackAttachmentField{
				Title: "Recommendations",
				Value: formatBulletList(a.Report.Recommendations),
				Short: false,
			})
		}
		if police := policeNearby(a.Report.NearbyPOIs); len(police) > 0 {
			fields = append(fields, &model.SlackAttachmentField{
				Title: "Nearest Police",
				Value: formatBulletList(police),
				Short: false,
			})
		}
	}

	// 5. Live capture
	if a.StreamID != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Live Capture",
			Value: fmt.Sprintf("Stream `%s`", a.StreamID),
			Short: false,
		})
	}

	attachment.Fields = fields
	attachment.Footer = fmt.Sprintf("Guardian | %s | Incident %s", a.Kind, a.IncidentID)

	return attachment
}

// Headline returns the one-line title of an alert.
func Headline(a alert.Alert) string {
	switch a.Kind {
	case alert.KindSOS:
		return fmt.Sprintf("🚨 SOS: %s needs assistance", a.Name)
	case alert.KindStandDown:
		return fmt.Sprintf("✅ Stand down: %s cancelled the SOS", a.Name)
	case alert.KindDebrief:
		return fmt.Sprintf("📝 Debrief from %s", a.Name)
	default:
		return fmt.Sprintf("Guardian update for %s", a.Name)
	}
}

// PlainText renders the alert for SMS and plain-text email bodies.
func PlainText(a alert.Alert) string {
	var b strings.Builder

	b.WriteString(Headline(a))
	switch a.Kind {
	case alert.KindSOS:
		fmt.Fprintf(&b, "\nCRITICAL SOS: %s (%s) needs assistance.", a.Name, a.Phone)
	case alert.KindStandDown:
		b.WriteString("\nThe user is safe. No further action needed.")
	}

	if a.Location != nil {
		fmt.Fprintf(&b, "\nLocation: %s", formatLocation(a.Location))
		fmt.Fprintf(&b, "\nMap: %s", MapLink(a.Location))
	}
	if a.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", a.Reason)
	}
	fmt.Fprintf(&b, "\nTime: %s", formatTime(a.Time))

	return b.String()
}

// MapLink returns a maps URL for loc.
func MapLink(loc *intel.Location) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", loc.Lat, loc.Lng)
}

// getAlertColor returns the color code for an alert kind
func getAlertColor(kind alert.Kind) string {
	switch kind {
	case alert.KindSOS:
		return ColorSOS
	case alert.KindStandDown:
		return ColorStandDown
	case alert.KindDebrief:
		return ColorDebrief
	default:
		return ColorUnknown
	}
}

// formatRisk renders a risk level with its emoji. HIGH and above are bold.
func formatRisk(level intel.RiskLevel) string {
	if level.AtLeast(intel.RiskHigh) {
		return fmt.Sprintf("%s **%s**", getRiskEmoji(level), level)
	}
	return fmt.Sprintf("%s %s", getRiskEmoji(level), level)
}

// getRiskEmoji returns the emoji for a risk level
func getRiskEmoji(level intel.RiskLevel) string {
	switch level {
	case intel.RiskCritical:
		return EmojiCritical
	case intel.RiskHigh:
		return EmojiHigh
	case intel.RiskMedium:
		return EmojiMedium
	case intel.RiskLow:
		return EmojiLow
	default:
		return EmojiUnknown
	}
}

// formatTime formats a time.Time to a readable string
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// formatLocation formats a location as coordinates with accuracy
func formatLocation(loc *intel.Location) string {
	text := fmt.Sprintf("(%.6f, %.6f)", loc.Lat, loc.Lng)
	if loc.Accuracy != nil && *loc.Accuracy > 0 {
		text += fmt.Sprintf(" ±%.0fm", *loc.Accuracy)
	}
	return text
}

// policeNearby lists police points of interest with their distance
func policeNearby(pois []intel.Device) []string {
	var out []string
	for _, poi := range pois {
		if poi.Type == intel.POIPolice {
			out = append(out, fmt.Sprintf("%s (%.1f km)", poi.Label, poi.Distance))
		}
	}
	return out
}

// formatBulletList formats a slice of strings as a bulleted list
func formatBulletList(items []string) string {
	bullets := make([]string, len(items))
	for i, item := range items {
		bullets[i] = fmt.Sprintf("• %s", item)
	}
	return strings.Join(bullets, "\n")
}

// truncateText truncates text to maxLen runes, adding "..." if truncated
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
