// Package alert defines the guardian notification sent when an SOS changes state.
package alert

import (
	"time"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Kind identifies what happened to the incident.
type Kind string

const (
	// KindSOS is sent when the grace period elapses and the broadcast goes out
	KindSOS Kind = "SOS"

	// KindStandDown is sent when the user cancels an active broadcast
	KindStandDown Kind = "STAND_DOWN"

	// KindDebrief is sent when the user explains an aborted SOS
	KindDebrief Kind = "DEBRIEF"
)

// Alert is the guardian-facing notification for one incident transition.
type Alert struct {
	// Kind is the transition being announced
	Kind Kind `json:"kind"`

	// IncidentID ties the SOS, its stand-down and its debrief together
	IncidentID string `json:"incidentId"`

	// UserID is the Mattermost user in distress
	UserID string `json:"userId"`

	// Name is the registered full legal name
	Name string `json:"name"`

	// Phone is the registered phone number
	Phone string `json:"phone"`

	// Email is the registered email address
	Email string `json:"email"`

	// MaskedID is the national ID with all but the last four digits hidden
	MaskedID string `json:"maskedId"`

	// Time is when the transition happened
	Time time.Time `json:"time"`

	// Location is the last known fix (nil when unknown)
	Location *intel.Location `json:"location,omitempty"`

	// Report is the intelligence report current at the time of the alert
	Report *intel.Report `json:"report,omitempty"`

	// StreamID identifies the live capture stream, if one was acquired
	StreamID string `json:"streamId,omitempty"`

	// Reason is the debrief explanation
	Reason string `json:"reason,omitempty"`

	// RootPostID threads follow-up alerts under the original SOS post
	RootPostID string `json:"rootPostId,omitempty"`
}

// Key identifies an alert for throttling: one notification per incident and kind.
func (a Alert) Key() string {
	return a.IncidentID + ":" + string(a.Kind)
}
