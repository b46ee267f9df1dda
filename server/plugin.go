package main

import (
	"encoding/json"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-guardian/server/capture"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	_ "github.com/mattermost/mattermost-plugin-guardian/server/intel/gemini" // Register gemini provider factory
	"github.com/mattermost/mattermost-plugin-guardian/server/location"
	"github.com/mattermost/mattermost-plugin-guardian/server/metrics"
	"github.com/mattermost/mattermost-plugin-guardian/server/notify"
	"github.com/mattermost/mattermost-plugin-guardian/server/poster"
	"github.com/mattermost/mattermost-plugin-guardian/server/session"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
)

const (
	defaultBotUsername    = "guardian"
	defaultBotDisplayName = "Guardian"

	// EventStateChanged carries a session snapshot to its user
	EventStateChanged = "state_changed"
)

// incidentLog is the subset of *store.IncidentLog used by the plugin.
type incidentLog interface {
	session.IncidentRepository
	List(userID string) ([]store.Incident, error)
	DeleteAll(userID string) error
}

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin

	// client is the Mattermost server API client.
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *configuration

	// sessions holds the live session of every user.
	sessions *session.Registry

	// gateway serves intelligence reports to every session.
	gateway *intel.Gateway

	// identities persists registered identities.
	identities session.IdentityRepository

	// incidents persists SOS incidents.
	incidents incidentLog

	// broadcaster delivers incident alerts to guardians.
	broadcaster *guardianBroadcaster

	// throttle is shared across all sessions to prevent duplicate broadcasts.
	throttle *Throttle

	// metrics collects session and provider metrics.
	metrics *metrics.Collector
}

// OnActivate is invoked when the plugin is activated. If an error is returned, the plugin will be deactivated.
func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)

	config := p.getConfiguration()

	botID, err := p.API.EnsureBotUser(&model.Bot{
		Username:    config.botUsername(),
		DisplayName: config.botDisplayName(),
		Description: "Bot for posting SOS broadcasts to guardians",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure bot user")
	}

	p.API.LogInfo("Bot user initialized", "botID", botID, "username", config.botUsername())

	p.metrics = metrics.NewCollector()
	p.identities = store.NewIdentityStore(p.API)
	p.incidents = store.NewIncidentLog(p.API)
	p.throttle = NewThrottle(p.client, BroadcastThrottleTTL)

	p.gateway = intel.NewGateway(nil, config.providerConfig(), &p.client.Log, p.metrics)
	p.applyProvider(config)

	p.broadcaster = newGuardianBroadcaster(poster.New(p.API, botID), p.throttle, &p.client.Log)
	p.broadcaster.configure(config.GuardianChannelID, notify.New(config.notifyConfig(), &p.client.Log))

	p.sessions = session.NewRegistry(p.newSession, p.metrics.SetActiveSessions)

	return nil
}

// OnDeactivate is invoked when the plugin is deactivated.
func (p *Plugin) OnDeactivate() error {
	if p.sessions != nil {
		p.sessions.CloseAll()
	}

	if p.throttle != nil {
		p.throttle.Stop()
	}

	return nil
}

// newSession builds the controller of a user on first contact. Capture and
// location run on the user's client and are driven over websocket events.
func (p *Plugin) newSession(userID string) (*session.Controller, error) {
	device := capture.NewRemoteDevice(p.userPublisher(userID), func() bool {
		return p.getConfiguration().EnableCapture
	})

	return session.NewController(session.Config{
		UserID:      userID,
		Identities:  p.identities,
		Incidents:   p.incidents,
		Advisor:     p.gateway,
		Watcher:     location.NewPushWatcher(),
		Capture:     capture.NewController(device, &p.client.Log),
		Broadcaster: p.broadcaster,
		Publish:     p.publishSnapshot,
		Recorder:    p.metrics,
		Logger:      &p.client.Log,
	}), nil
}

// userPublisher sends websocket events to a single user.
func (p *Plugin) userPublisher(userID string) capture.Publisher {
	return func(event string, payload map[string]interface{}) {
		p.API.PublishWebSocketEvent(event, payload, &model.WebsocketBroadcast{UserId: userID})
	}
}

// publishSnapshot pushes a session snapshot to its user. The snapshot travels
// as JSON so the payload stays a flat map.
func (p *Plugin) publishSnapshot(userID string, snapshot session.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		p.API.LogError("Failed to marshal session snapshot", "userId", userID, "error", err.Error())
		return
	}

	p.API.PublishWebSocketEvent(EventStateChanged, map[string]interface{}{
		"state":   string(data),
		"version": snapshot.Version,
	}, &model.WebsocketBroadcast{UserId: userID})
}
