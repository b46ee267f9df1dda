package intel

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for distance conversions.
const EarthRadiusKm = 6371.0088

func latLng(lat, lng float64) s2.LatLng {
	return s2.LatLngFromDegrees(lat, lng)
}

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(fromLat, fromLng, toLat, toLng float64) float64 {
	angle := latLng(fromLat, fromLng).Distance(latLng(toLat, toLng))
	return angle.Radians() * EarthRadiusKm
}

// Contains reports whether loc lies inside the zone's circle.
func (z Zone) Contains(loc Location) bool {
	if z.Radius <= 0 {
		return false
	}

	center := s2.PointFromLatLng(latLng(z.Lat, z.Lng))
	radius := s1.Angle(z.Radius / 1000 / EarthRadiusKm)
	zoneCap := s2.CapFromCenterAngle(center, radius)

	return zoneCap.ContainsPoint(s2.PointFromLatLng(latLng(loc.Lat, loc.Lng)))
}

// ZoneAt returns the first zone containing loc, preferring RED zones.
func ZoneAt(zones []Zone, loc Location) (Zone, bool) {
	var green *Zone
	for i := range zones {
		if !zones[i].Contains(loc) {
			continue
		}
		if zones[i].Type == ZoneRed {
			return zones[i], true
		}
		if green == nil {
			green = &zones[i]
		}
	}

	if green != nil {
		return *green, true
	}
	return Zone{}, false
}
