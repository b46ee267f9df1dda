package hashtag

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/biter777/countries"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// South African province code to full name mapping
var saProvinces = map[string]string{
	"EC": "Eastern Cape", "FS": "Free State", "GP": "Gauteng", "KZN": "KwaZulu-Natal",
	"LP": "Limpopo", "MP": "Mpumalanga", "NC": "Northern Cape", "NW": "North West",
	"WC": "Western Cape",
}

// areaSeparator splits "Sandton, Johannesburg" and "Johannesburg - Sandton"
var areaSeparator = regexp.MustCompile(`\s*,\s*|\s+-\s+`)

// maxPlaceTags bounds the place hashtags emitted before the country
const maxPlaceTags = 2

// extractAreaTags extracts location hashtags from a report's city name.
//
// Heuristic:
//
// Step 1: Split on commas and " - " and clean each part
//   - Drop any part containing numbers (street numbers, postal codes)
//   - Drop the fallback placeholder entirely
//
// Step 2: Detect the country from the last part (name or ISO code)
//   - If found: "#SouthAfrica" is emitted last and the country part is consumed
//   - Province codes are expanded for South Africa: "GP" -> "#Gauteng"
//
// Step 3: The last two remaining parts become place hashtags in CamelCase
//
// Examples:
//   - "Johannesburg - Sandton" -> #Johannesburg, #Sandton
//   - "Sandton, GP, South Africa" -> #Sandton, #Gauteng, #SouthAfrica
//   - "Unknown Sector" -> no tags
func extractAreaTags(cityName string) []string {
	cityName = strings.TrimSpace(cityName)
	if cityName == "" || strings.EqualFold(cityName, intel.FallbackCityName) {
		return nil
	}

	var parts []string
	for _, part := range areaSeparator.Split(cityName, -1) {
		part = strings.TrimSpace(part)
		if part == "" || containsNumber(part) {
			continue
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return nil
	}

	country := countries.Unknown
	if len(parts) > 1 {
		country = detectCountry(parts[len(parts)-1])
		if country != countries.Unknown {
			parts = parts[:len(parts)-1]
		}
	}

	if len(parts) > maxPlaceTags {
		parts = parts[len(parts)-maxPlaceTags:]
	}

	var tags []string
	for _, part := range parts {
		tags = append(tags, "#"+camelCase(expandProvince(part, country)))
	}

	if country != countries.Unknown {
		tags = append(tags, "#"+camelCase(country.String()))
	}

	return tags
}

// containsNumber checks if a string contains any digit.
func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// detectCountry tries to identify a country from a string (name or code).
func detectCountry(s string) countries.CountryCode {
	if s == "" {
		return countries.Unknown
	}

	// ByName handles full names and ISO codes, case-insensitively
	return countries.ByName(s)
}

// expandProvince expands a South African province code to its full name.
// Other values are returned as-is.
func expandProvince(part string, country countries.CountryCode) string {
	if country != countries.ZA {
		return part
	}

	if fullName, exists := saProvinces[strings.ToUpper(part)]; exists {
		return fullName
	}
	return part
}
