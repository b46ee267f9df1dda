package hashtag

import (
	"strings"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// extractCategoryTags extracts hashtags from point-of-interest categories.
//
// Algorithm:
// 1. Strip the "POI_" prefix from each category
// 2. Convert the rest to CamelCase
// 3. Emit categories in first-seen order
//
// Examples:
//   - POI_POLICE -> #Police
//   - POI_ROAD_CLOSED -> #RoadClosed
//
// Non-POI devices (guardians, suspects) produce no tags. Deduplication
// happens later.
func extractCategoryTags(pois []intel.Device) []string {
	var tags []string

	for _, poi := range pois {
		if !poi.Type.IsPOI() {
			continue
		}
		name := strings.TrimPrefix(string(poi.Type), "POI_")
		tags = append(tags, "#"+enumCamelCase(name))
	}

	return tags
}
