package intel

// Location is a single position fix. It is superseded on every update.
type Location struct {
	// Lat is the geographic latitude in degrees
	Lat float64 `json:"lat"`

	// Lng is the geographic longitude in degrees
	Lng float64 `json:"lng"`

	// Accuracy is the reported horizontal accuracy in meters (nil when unknown)
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// RiskLevel is the overall threat level of a report, ordered LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// Rank returns the ordinal of the level (0 for unknown levels).
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// AtLeast reports whether r is ordered at or above other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// ZoneType classifies a tactical zone.
type ZoneType string

const (
	ZoneRed   ZoneType = "RED"
	ZoneGreen ZoneType = "GREEN"
)

// Zone is a circular geofenced risk annotation. Zones are immutable once received.
type Zone struct {
	ID     string   `json:"id"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
	Radius float64  `json:"radius"` // meters
	Type   ZoneType `json:"type"`
	Label  string   `json:"label"`
}

// DeviceType is the category of an entry in the displayed device list.
type DeviceType string

const (
	DeviceGuardian DeviceType = "GUARDIAN"
	DeviceUnknown  DeviceType = "UNKNOWN"
	DeviceSuspect  DeviceType = "SUSPECT"

	POIPolice     DeviceType = "POI_POLICE"
	POIFood       DeviceType = "POI_FOOD"
	POILeisure    DeviceType = "POI_LEISURE"
	POISports     DeviceType = "POI_SPORTS"
	POISalon      DeviceType = "POI_SALON"
	POIMall       DeviceType = "POI_MALL"
	POIAccident   DeviceType = "POI_ACCIDENT"
	POIRoadClosed DeviceType = "POI_ROAD_CLOSED"
	POISale       DeviceType = "POI_SALE"
	POIEvent      DeviceType = "POI_EVENT"
	POIHotel      DeviceType = "POI_HOTEL"
)

var poiTypes = map[DeviceType]bool{
	POIPolice:     true,
	POIFood:       true,
	POILeisure:    true,
	POISports:     true,
	POISalon:      true,
	POIMall:       true,
	POIAccident:   true,
	POIRoadClosed: true,
	POISale:       true,
	POIEvent:      true,
	POIHotel:      true,
}

// IsPOI reports whether t is one of the point-of-interest categories.
func (t DeviceType) IsPOI() bool {
	return poiTypes[t]
}

// Device is one entry of the displayed device list: a simulated nearby device
// or a point of interest supplied by a report.
type Device struct {
	ID             string     `json:"id"`
	Type           DeviceType `json:"type"`
	SignalStrength float64    `json:"signalStrength"` // [0,1]
	Distance       float64    `json:"distance"`       // kilometers
	Label          string     `json:"label"`
	Lat            *float64   `json:"lat,omitempty"`
	Lng            *float64   `json:"lng,omitempty"`
}

// Report is a structured intelligence report. Reports are replaced wholesale,
// never merged.
type Report struct {
	RiskLevel       RiskLevel `json:"riskLevel"`
	Summary         string    `json:"summary"`
	CityName        string    `json:"cityName,omitempty"`
	Recommendations []string  `json:"recommendations"`
	TacticalZones   []Zone    `json:"tacticalZones"`
	NearbyPOIs      []Device  `json:"nearbyPois"`

	// Degraded is set when the report is the deterministic fallback
	Degraded bool `json:"degraded"`
}

// Clone returns a deep copy so snapshots never alias controller state.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}

	clone := *r
	if r.Recommendations != nil {
		clone.Recommendations = append([]string(nil), r.Recommendations...)
	}
	if r.TacticalZones != nil {
		clone.TacticalZones = append([]Zone(nil), r.TacticalZones...)
	}
	if r.NearbyPOIs != nil {
		clone.NearbyPOIs = CloneDevices(r.NearbyPOIs)
	}
	return &clone
}

// CloneDevices deep-copies a device list including coordinate pointers.
func CloneDevices(devices []Device) []Device {
	if devices == nil {
		return nil
	}

	out := make([]Device, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Lat != nil {
			lat := *d.Lat
			out[i].Lat = &lat
		}
		if d.Lng != nil {
			lng := *d.Lng
			out[i].Lng = &lng
		}
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
