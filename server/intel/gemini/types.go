package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// generateRequest is the generateContent request envelope
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

// APIError represents the error envelope returned by the API
// Format: {"error": {"code": 400, "message": "...", "status": "INVALID_ARGUMENT"}}
type APIError struct {
	Detail struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if e.Detail.Message == "" {
		return "unknown API error"
	}
	return fmt.Sprintf("%s: %s", e.Detail.Status, e.Detail.Message)
}

// wireReport is the structured object the model is asked to return
type wireReport struct {
	RiskLevel       string     `json:"riskLevel"`
	Summary         string     `json:"summary"`
	CityName        string     `json:"cityName"`
	Recommendations []string   `json:"recommendations"`
	TacticalZones   []wireZone `json:"tacticalZones"`
	NearbyPOIs      []wirePOI  `json:"nearbyPois"`
}

type wireZone struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
	Type   string  `json:"type"`
	Label  string  `json:"label"`
}

type wirePOI struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Label          string   `json:"label"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Distance       float64  `json:"distance"`
	SignalStrength *float64 `json:"signalStrength"`
}

// decodeReport parses the model's JSON text and converts it to an intel.Report
func decodeReport(text string) (*intel.Report, error) {
	var wire wireReport
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse report payload: %w", err)
	}

	return normalizeWire(wire), nil
}

// normalizeWire converts the wire object to the domain report.
// Field-level validation is left to the gateway.
func normalizeWire(wire wireReport) *intel.Report {
	report := &intel.Report{
		RiskLevel:       intel.RiskLevel(wire.RiskLevel),
		Summary:         wire.Summary,
		CityName:        wire.CityName,
		Recommendations: wire.Recommendations,
	}

	if len(wire.TacticalZones) > 0 {
		report.TacticalZones = make([]intel.Zone, len(wire.TacticalZones))
		for i, z := range wire.TacticalZones {
			report.TacticalZones[i] = intel.Zone{
				ID:     z.ID,
				Lat:    z.Lat,
				Lng:    z.Lng,
				Radius: z.Radius,
				Type:   intel.ZoneType(z.Type),
				Label:  z.Label,
			}
		}
	}

	if len(wire.NearbyPOIs) > 0 {
		report.NearbyPOIs = make([]intel.Device, len(wire.NearbyPOIs))
		for i, p := range wire.NearbyPOIs {
			// Points of interest are static markers; full signal unless stated
			signal := 1.0
			if p.SignalStrength != nil {
				signal = *p.SignalStrength
			}
			report.NearbyPOIs[i] = intel.Device{
				ID:             p.ID,
				Type:           intel.DeviceType(p.Type),
				SignalStrength: signal,
				Distance:       p.Distance,
				Label:          p.Label,
				Lat:            p.Lat,
				Lng:            p.Lng,
			}
		}
	}

	return report
}
