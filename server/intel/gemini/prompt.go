package gemini

import (
	"fmt"
	"strings"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// buildPrompt embeds the situation text and coordinates into the task prompt
func buildPrompt(req intel.Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SITUATION: %s.\n", req.Situation)
	if req.Location != nil {
		fmt.Fprintf(&b, "COORDINATES: %.6f, %.6f.\n", req.Location.Lat, req.Location.Lng)
	} else {
		b.WriteString("COORDINATES: unknown.\n")
	}

	b.WriteString(`
TASK:
1. Name the city and neighborhood at the coordinates.
2. From recent and historical patterns, mark 3 RED zones (high risk) and 3 GREEN zones (low risk) with a radius in meters.
3. List nearby points of interest: police stations, take-away food, leisure, sports, wellness and salons, malls, and hotels or guesthouses.
4. For hotels and guesthouses include the name and an approximate rating in the label (e.g. "Grand Hotel - 4.5*").
5. Include situational updates as points of interest: road closures, heavy traffic, recent accidents or emergency activity, local sales and community events.

Return structured data with lat/lng coordinates and category-specific labels.`)

	return b.String()
}

// responseSchema constrains the model output to the report shape
func responseSchema() map[string]any {
	str := map[string]any{"type": "STRING"}
	num := map[string]any{"type": "NUMBER"}

	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"riskLevel":       map[string]any{"type": "STRING", "enum": []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}},
			"summary":         str,
			"cityName":        str,
			"recommendations": map[string]any{"type": "ARRAY", "items": str},
			"tacticalZones": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"id":     str,
						"lat":    num,
						"lng":    num,
						"radius": num,
						"type":   map[string]any{"type": "STRING", "description": "RED or GREEN"},
						"label":  str,
					},
					"required": []string{"id", "lat", "lng", "radius", "type", "label"},
				},
			},
			"nearbyPois": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"id":       str,
						"type":     map[string]any{"type": "STRING", "description": poiTypeDescription},
						"label":    str,
						"lat":      num,
						"lng":      num,
						"distance": num,
					},
					"required": []string{"id", "type", "label", "lat", "lng"},
				},
			},
		},
		"required": []string{"riskLevel", "summary", "cityName", "recommendations", "tacticalZones", "nearbyPois"},
	}
}

const poiTypeDescription = "POI_POLICE, POI_FOOD, POI_LEISURE, POI_SPORTS, POI_SALON, POI_MALL, POI_ACCIDENT, POI_ROAD_CLOSED, POI_SALE, POI_EVENT, POI_HOTEL"
