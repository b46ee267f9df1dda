// Package devices builds the displayed device list from the simulated nearby
// devices and the points of interest of the latest report.
package devices

import "github.com/mattermost/mattermost-plugin-guardian/server/intel"

// SuspectID is the ID of the synthetic threat injected on SOS activation.
const SuspectID = "99"

var baseline = []intel.Device{
	{ID: "1", Type: intel.DeviceGuardian, SignalStrength: 0.8, Distance: 1.2, Label: "ANGEL_DELTA_09"},
	{ID: "2", Type: intel.DeviceUnknown, SignalStrength: 0.4, Distance: 3.5, Label: "MAC:2A:8F"},
	{ID: "3", Type: intel.DeviceGuardian, SignalStrength: 0.9, Distance: 0.8, Label: "ANGEL_PRIME_22"},
}

// Baseline returns a fresh copy of the three simulated nearby devices.
func Baseline() []intel.Device {
	return intel.CloneDevices(baseline)
}

// Suspect returns the synthetic SUSPECT device.
func Suspect() intel.Device {
	return intel.Device{
		ID:             SuspectID,
		Type:           intel.DeviceSuspect,
		SignalStrength: 1.0,
		Distance:       0.2,
		Label:          "THREAT_ALPHA_CLOSE",
	}
}

// Aggregate returns base followed by pois, order preserved. The result shares
// no memory with its inputs.
func Aggregate(base, pois []intel.Device) []intel.Device {
	out := make([]intel.Device, 0, len(base)+len(pois))
	out = append(out, intel.CloneDevices(base)...)
	out = append(out, intel.CloneDevices(pois)...)
	return out
}

// FromReport aggregates the baseline with the report's points of interest.
// A nil report yields the baseline alone.
func FromReport(report *intel.Report) []intel.Device {
	if report == nil {
		return Aggregate(baseline, nil)
	}
	return Aggregate(baseline, report.NearbyPOIs)
}

// WithSuspect appends the SUSPECT device to list. It accumulates: repeated
// calls append repeatedly.
func WithSuspect(list []intel.Device) []intel.Device {
	out := intel.CloneDevices(list)
	return append(out, Suspect())
}

// CountByType tallies the list per device type.
func CountByType(list []intel.Device) map[intel.DeviceType]int {
	counts := make(map[intel.DeviceType]int)
	for _, d := range list {
		counts[d.Type]++
	}
	return counts
}
