package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi/cluster"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Outcome is the resolution of an SOS incident.
type Outcome string

const (
	// OutcomePending is set while the grace period is running
	OutcomePending Outcome = "PENDING"
	// OutcomeActive is set once the broadcast has gone out
	OutcomeActive Outcome = "ACTIVE"
	// OutcomeAbortedPending marks a cancel during the grace period
	OutcomeAbortedPending Outcome = "ABORTED_PENDING"
	// OutcomeStoodDown marks a cancel after the broadcast went out
	OutcomeStoodDown Outcome = "STOOD_DOWN"
)

// maxIncidentsPerUser bounds the per-user incident index
const maxIncidentsPerUser = 50

// Incident is the persisted record of one SOS trigger.
type Incident struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Outcome       Outcome         `json:"outcome"`
	StartedAt     time.Time       `json:"startedAt"`
	ActivatedAt   *time.Time      `json:"activatedAt,omitempty"`
	EndedAt       *time.Time      `json:"endedAt,omitempty"`
	Location      *intel.Location `json:"location,omitempty"`
	RiskLevel     intel.RiskLevel `json:"riskLevel,omitempty"`
	DebriefReason string          `json:"debriefReason,omitempty"`
	PostID        string          `json:"postId,omitempty"`
}

// IncidentLog stores incidents and a bounded per-user index of incident IDs.
type IncidentLog struct {
	api plugin.API
}

// NewIncidentLog creates a new incident log
func NewIncidentLog(api plugin.API) *IncidentLog {
	return &IncidentLog{api: api}
}

func incidentKey(id string) string {
	return fmt.Sprintf("guardian_incident_%s", id)
}

func incidentIndexKey(userID string) string {
	return fmt.Sprintf("guardian_incidents_%s", userID)
}

// Save writes the incident. New incidents are added to the owner's index.
func (l *IncidentLog) Save(incident Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	existing, appErr := l.api.KVGet(incidentKey(incident.ID))
	if appErr != nil {
		return fmt.Errorf("failed to check incident: %w", appErr)
	}

	if appErr := l.api.KVSet(incidentKey(incident.ID), data); appErr != nil {
		return fmt.Errorf("failed to save incident: %w", appErr)
	}

	if existing == nil {
		if err := l.appendIndex(incident.UserID, incident.ID); err != nil {
			return err
		}
	}

	return nil
}

// Get retrieves an incident by ID
// Returns nil if the incident does not exist
func (l *IncidentLog) Get(id string) (*Incident, error) {
	data, appErr := l.api.KVGet(incidentKey(id))
	if appErr != nil {
		return nil, fmt.Errorf("failed to get incident: %w", appErr)
	}

	if data == nil {
		return nil, nil
	}

	var incident Incident
	if err := json.Unmarshal(data, &incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident: %w", err)
	}

	return &incident, nil
}

// List returns the user's incidents, most recent first.
func (l *IncidentLog) List(userID string) ([]Incident, error) {
	ids, err := l.index(userID)
	if err != nil {
		return nil, err
	}

	incidents := make([]Incident, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		incident, err := l.Get(ids[i])
		if err != nil {
			return nil, err
		}
		if incident != nil {
			incidents = append(incidents, *incident)
		}
	}

	return incidents, nil
}

// DeleteAll removes every incident of the user.
func (l *IncidentLog) DeleteAll(userID string) error {
	unlock, err := l.lockIndex(userID)
	if err != nil {
		return err
	}
	defer unlock()

	ids, err := l.index(userID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if appErr := l.api.KVDelete(incidentKey(id)); appErr != nil {
			return fmt.Errorf("failed to delete key %s: %w", incidentKey(id), appErr)
		}
	}

	if appErr := l.api.KVDelete(incidentIndexKey(userID)); appErr != nil {
		return fmt.Errorf("failed to delete incident index: %w", appErr)
	}

	return nil
}

func (l *IncidentLog) index(userID string) ([]string, error) {
	data, appErr := l.api.KVGet(incidentIndexKey(userID))
	if appErr != nil {
		return nil, fmt.Errorf("failed to get incident index: %w", appErr)
	}

	if data == nil {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident index: %w", err)
	}

	return ids, nil
}

// lockIndex serializes index updates for userID across the cluster.
func (l *IncidentLog) lockIndex(userID string) (func(), error) {
	mutex, err := cluster.NewMutex(l.api, incidentIndexKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to create incident index lock: %w", err)
	}

	mutex.Lock()
	return mutex.Unlock, nil
}

func (l *IncidentLog) appendIndex(userID, id string) error {
	unlock, err := l.lockIndex(userID)
	if err != nil {
		return err
	}
	defer unlock()

	ids, err := l.index(userID)
	if err != nil {
		return err
	}

	ids = append(ids, id)
	if len(ids) > maxIncidentsPerUser {
		dropped := ids[:len(ids)-maxIncidentsPerUser]
		for _, old := range dropped {
			if appErr := l.api.KVDelete(incidentKey(old)); appErr != nil {
				return fmt.Errorf("failed to delete key %s: %w", incidentKey(old), appErr)
			}
		}
		ids = ids[len(ids)-maxIncidentsPerUser:]
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal incident index: %w", err)
	}

	if appErr := l.api.KVSet(incidentIndexKey(userID), data); appErr != nil {
		return fmt.Errorf("failed to save incident index: %w", appErr)
	}

	return nil
}
