package devices

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// zoneVertices is the number of vertices used to approximate a zone circle.
const zoneVertices = 32

// Feature kinds set in the "kind" property of every overlay feature
const (
	KindUser   = "user"
	KindZone   = "zone"
	KindDevice = "device"
)

// Overlay renders the map overlay: the user's position, every tactical zone
// as a polygon and every device that carries coordinates.
func Overlay(loc *intel.Location, zones []intel.Zone, list []intel.Device) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if loc != nil {
		user := geojson.NewPointFeature([]float64{loc.Lng, loc.Lat})
		user.SetProperty("kind", KindUser)
		if loc.Accuracy != nil {
			user.SetProperty("accuracy", *loc.Accuracy)
		}
		if zone, ok := intel.ZoneAt(zones, *loc); ok {
			user.SetProperty("zoneId", zone.ID)
			user.SetProperty("zoneType", string(zone.Type))
		}
		fc.AddFeature(user)
	}

	for _, zone := range zones {
		feature := geojson.NewPolygonFeature([][][]float64{zoneRing(zone)})
		feature.ID = zone.ID
		feature.SetProperty("kind", KindZone)
		feature.SetProperty("type", string(zone.Type))
		feature.SetProperty("label", zone.Label)
		feature.SetProperty("radius", zone.Radius)
		fc.AddFeature(feature)
	}

	for _, d := range list {
		if d.Lat == nil || d.Lng == nil {
			continue
		}
		feature := geojson.NewPointFeature([]float64{*d.Lng, *d.Lat})
		feature.ID = d.ID
		feature.SetProperty("kind", KindDevice)
		feature.SetProperty("type", string(d.Type))
		feature.SetProperty("label", d.Label)
		feature.SetProperty("signalStrength", d.SignalStrength)
		feature.SetProperty("distance", d.Distance)
		fc.AddFeature(feature)
	}

	return fc
}

// zoneRing approximates the zone circle as a closed lng/lat ring.
func zoneRing(zone intel.Zone) [][]float64 {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(zone.Lat, zone.Lng))
	radius := s1.Angle(zone.Radius / 1000 / intel.EarthRadiusKm)
	loop := s2.RegularLoop(center, radius, zoneVertices)

	ring := make([][]float64, 0, zoneVertices+1)
	for _, v := range loop.Vertices() {
		ll := s2.LatLngFromPoint(v)
		ring = append(ring, []float64{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}
