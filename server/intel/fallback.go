package intel

// Fallback report content. Offsets are fixed so the report is a pure function
// of the supplied coordinates.
const (
	FallbackSummary  = "Local intelligence link degraded. Using predictive modeling for life updates."
	FallbackCityName = "Unknown Sector"
)

type fallbackZone struct {
	id     string
	dLat   float64
	dLng   float64
	radius float64
	typ    ZoneType
	label  string
}

type fallbackPOI struct {
	id       string
	typ      DeviceType
	label    string
	dLat     float64
	dLng     float64
	signal   float64
	distance float64
}

var fallbackRecommendations = []string{
	"Monitor map for road closures.",
	"Stay in Green Zones.",
	"Avoid reported accident areas.",
}

var fallbackZones = []fallbackZone{
	{id: "z1", dLat: 0.005, dLng: 0.005, radius: 300, typ: ZoneRed, label: "HIGH_CRIME_ALLEY"},
	{id: "z2", dLat: -0.005, dLng: -0.005, radius: 400, typ: ZoneGreen, label: "CENTRAL_PARK_SAFE"},
}

var fallbackPOIs = []fallbackPOI{
	{id: "p1", typ: POIPolice, label: "STATION_A", dLat: 0.002, dLng: -0.002, signal: 1.0, distance: 0.2},
	{id: "p2", typ: POIRoadClosed, label: "MAIN_ST_CLOSED", dLat: 0.003, dLng: 0.001, signal: 0.8, distance: 0.3},
	{id: "p3", typ: POISale, label: "MALL_50%_SALE", dLat: -0.003, dLng: 0.004, signal: 0.9, distance: 0.5},
	{id: "p4", typ: POIHotel, label: "SAFE_HOUSE_INN - 4.2*", dLat: 0.004, dLng: -0.001, signal: 1.0, distance: 0.4},
}

// FallbackReport builds the canned degraded report around loc, or around 0,0
// when no location is known.
func FallbackReport(loc *Location) *Report {
	var lat, lng float64
	if loc != nil {
		lat, lng = loc.Lat, loc.Lng
	}

	report := &Report{
		RiskLevel:       RiskHigh,
		Summary:         FallbackSummary,
		CityName:        FallbackCityName,
		Recommendations: append([]string(nil), fallbackRecommendations...),
		TacticalZones:   make([]Zone, 0, len(fallbackZones)),
		NearbyPOIs:      make([]Device, 0, len(fallbackPOIs)),
		Degraded:        true,
	}

	for _, z := range fallbackZones {
		report.TacticalZones = append(report.TacticalZones, Zone{
			ID:     z.id,
			Lat:    lat + z.dLat,
			Lng:    lng + z.dLng,
			Radius: z.radius,
			Type:   z.typ,
			Label:  z.label,
		})
	}

	for _, p := range fallbackPOIs {
		report.NearbyPOIs = append(report.NearbyPOIs, Device{
			ID:             p.id,
			Type:           p.typ,
			SignalStrength: p.signal,
			Distance:       p.distance,
			Label:          p.label,
			Lat:            Float(lat + p.dLat),
			Lng:            Float(lng + p.dLng),
		})
	}

	return report
}
