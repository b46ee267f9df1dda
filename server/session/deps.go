package session

import (
	"context"
	"time"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/location"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
	"github.com/mattermost/mattermost-plugin-guardian/server/timer"
)

// Logger is the subset of the plugin log service used by sessions.
type Logger interface {
	Debug(message string, keyValuePairs ...interface{})
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
	Error(message string, keyValuePairs ...interface{})
}

// Advisor produces intelligence reports. It must never fail; *intel.Gateway
// satisfies it.
type Advisor interface {
	GetTacticalAdvice(ctx context.Context, situation string, loc *intel.Location) *intel.Report
}

// IdentityRepository persists the registered identity of a user.
type IdentityRepository interface {
	Save(userID string, identity store.Identity) error
	Load(userID string) (*store.Identity, error)
	Delete(userID string) error
}

// IncidentRepository persists SOS incidents.
type IncidentRepository interface {
	Save(incident store.Incident) error
}

// MediaCapture starts and stops the SOS audio/video capture.
// *capture.Controller satisfies it.
type MediaCapture interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	Recording() bool
	StreamID() string
	LiveTracks() int
}

// Broadcaster delivers an alert to guardians and returns the ID of the post it
// created, if any. NotifyUser reaches only the user's own DM.
type Broadcaster interface {
	Broadcast(ctx context.Context, a alert.Alert) (string, error)
	NotifyUser(ctx context.Context, a alert.Alert) error
}

// Recorder receives session metrics. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveTransition(from, to string)
	ObserveCapture(started bool)
	ObserveBroadcast(kind string, delivered bool)
	ObserveLocationError()
}

// Publisher pushes a snapshot to the session's user.
type Publisher func(userID string, snapshot Snapshot)

// Config wires a Controller to its collaborators. Only UserID, Identities,
// Advisor and Capture are required.
type Config struct {
	UserID      string
	Identities  IdentityRepository
	Incidents   IncidentRepository
	Advisor     Advisor
	Watcher     *location.PushWatcher
	Capture     MediaCapture
	Broadcaster Broadcaster
	Publish     Publisher
	Recorder    Recorder
	Logger      Logger

	// Scheduler runs the grace and scan timers. Defaults to timer.Real.
	Scheduler timer.Scheduler

	// Dispatch runs follow-up work (intelligence calls, capture, broadcasts)
	// outside the controller lock. Defaults to a new goroutine per task.
	Dispatch func(func())

	// BroadcastTimeout bounds one guardian broadcast.
	BroadcastTimeout time.Duration

	// CaptureTimeout bounds media acquisition.
	CaptureTimeout time.Duration
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string) {}
func (nopRecorder) ObserveCapture(bool)              {}
func (nopRecorder) ObserveBroadcast(string, bool)    {}
func (nopRecorder) ObserveLocationError()            {}

type nopIncidents struct{}

func (nopIncidents) Save(store.Incident) error { return nil }

func goDispatch(f func()) {
	go f()
}
