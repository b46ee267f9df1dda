package session

import (
	"math"
	"time"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
)

// CaptureState describes the media capture of a session.
type CaptureState struct {
	Active     bool   `json:"active"`
	Recording  bool   `json:"recording"`
	StreamID   string `json:"streamId,omitempty"`
	LiveTracks int    `json:"liveTracks"`
}

// Snapshot is a read-only copy of session state for the presentation layer.
// It shares no memory with the controller.
type Snapshot struct {
	UserID        string          `json:"userId"`
	Status        Status          `json:"status"`
	Identity      *store.Identity `json:"identity,omitempty"`
	Location      *intel.Location `json:"location,omitempty"`
	LocationError string          `json:"locationError,omitempty"`
	Report        *intel.Report   `json:"report,omitempty"`
	Devices       []intel.Device  `json:"devices"`
	ActiveZone    *intel.Zone     `json:"activeZone,omitempty"`
	IncidentID    string          `json:"incidentId,omitempty"`
	Capture       CaptureState    `json:"capture"`

	// GraceRemainingSeconds counts down while the status is SOS_PENDING
	GraceRemainingSeconds int `json:"graceRemainingSeconds,omitempty"`

	// Version increases with every change
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot returns the current state with the identity masked.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Identity returns a copy of the full registered identity, or nil.
func (c *Controller) Identity() *store.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return nil
	}
	identity := *c.identity
	return &identity
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Location returns the last known fix, or nil.
func (c *Controller) Location() *intel.Location {
	return c.tracker.Current()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		UserID:        c.userID,
		Status:        c.status,
		Location:      c.tracker.Current(),
		LocationError: c.tracker.LastError(),
		Report:        c.report.Clone(),
		Devices:       intel.CloneDevices(c.devices),
		Capture: CaptureState{
			Active:     c.capture.Active(),
			Recording:  c.capture.Recording(),
			StreamID:   c.capture.StreamID(),
			LiveTracks: c.capture.LiveTracks(),
		},
		Version:   c.version,
		UpdatedAt: c.updatedAt,
	}

	if s.Devices == nil {
		s.Devices = []intel.Device{}
	}

	if c.identity != nil {
		masked := c.identity.Masked()
		s.Identity = &masked
	}

	if c.incident != nil && (c.status == StatusSOSPending || c.status == StatusSOSActive || c.status == StatusDebriefing) {
		s.IncidentID = c.incident.ID
	}

	if c.status == StatusSOSPending && !c.graceDeadline.IsZero() {
		remaining := c.graceDeadline.Sub(c.scheduler.Now())
		if remaining > 0 {
			s.GraceRemainingSeconds = int(math.Ceil(remaining.Seconds()))
		}
	}

	if s.Location != nil && c.report != nil {
		if zone, ok := intel.ZoneAt(c.report.TacticalZones, *s.Location); ok {
			s.ActiveZone = &zone
		}
	}

	return s
}
