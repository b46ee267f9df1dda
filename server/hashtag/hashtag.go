package hashtag

import (
	"strings"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
)

// Generate creates formatted hashtag text for a guardian alert.
//
// Order of hashtags:
// 1. Alert kind (#SOS, #StandDown, #Debrief)
// 2. Risk level (#Critical, #High, ...) when a report is attached
// 3. Area (city, province, country) from the report's city name
// 4. Point-of-interest categories present in the report
//
// Returns formatted string (e.g., "🏷️ #SOS, #High, #Johannesburg, #SouthAfrica, #Police")
func Generate(a alert.Alert) string {
	var allTags []string

	// 1. Kind (always first)
	allTags = append(allTags, kindTag(a.Kind))

	if a.Report != nil {
		// 2. Risk level
		if a.Report.RiskLevel.Valid() {
			allTags = append(allTags, "#"+capitalizeFirst(string(a.Report.RiskLevel)))
		}

		// 3. Area
		allTags = append(allTags, extractAreaTags(a.Report.CityName)...)

		// 4. Categories
		allTags = append(allTags, extractCategoryTags(a.Report.NearbyPOIs)...)
	}

	return formatHashtagText(deduplicateTags(allTags))
}

// kindTag returns the hashtag for an alert kind.
func kindTag(kind alert.Kind) string {
	switch kind {
	case alert.KindSOS:
		return "#SOS"
	case "":
		return "#Guardian"
	default:
		return "#" + enumCamelCase(string(kind))
	}
}

// deduplicateTags removes duplicate tags (case-insensitive) while preserving order.
func deduplicateTags(tags []string) []string {
	seen := make(map[string]bool)
	var uniqueTags []string

	for _, tag := range tags {
		tagLower := strings.ToLower(tag)
		if !seen[tagLower] {
			uniqueTags = append(uniqueTags, tag)
			seen[tagLower] = true
		}
	}

	return uniqueTags
}

// formatHashtagText formats hashtags as comma-separated text with emoji prefix.
func formatHashtagText(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	return "🏷️ " + strings.Join(tags, ", ")
}

// camelCase converts text to CamelCase by capitalizing first letter of each word
// and removing spaces.
func camelCase(text string) string {
	words := strings.Fields(text)
	var result strings.Builder

	for _, word := range words {
		if len(word) > 0 {
			result.WriteString(strings.ToUpper(word[:1]))
			if len(word) > 1 {
				result.WriteString(word[1:])
			}
		}
	}

	return result.String()
}

// enumCamelCase converts an UPPER_SNAKE enum value to CamelCase.
// Example: "STAND_DOWN" -> "StandDown"
func enumCamelCase(value string) string {
	var result strings.Builder
	for _, word := range strings.Split(value, "_") {
		result.WriteString(capitalizeFirst(word))
	}
	return result.String()
}

// capitalizeFirst capitalizes the first letter of a word and lowercases the rest.
func capitalizeFirst(word string) string {
	if len(word) == 0 {
		return ""
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}
