package main

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/notify"
)

// configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes.
//
// If you add non-reference types to your configuration struct, be sure to rewrite Clone as a deep
// copy appropriate for your types.
type configuration struct {
	// ProviderType selects the intelligence provider ("gemini" or "offline")
	ProviderType              string `json:"ProviderType"`
	ProviderURL               string `json:"ProviderURL"`
	ProviderAPIKey            string `json:"ProviderAPIKey"`
	ProviderModel             string `json:"ProviderModel"`
	ProviderTimeoutSeconds    int    `json:"ProviderTimeoutSeconds"`
	ProviderRequestsPerMinute int    `json:"ProviderRequestsPerMinute"`

	// GuardianChannelID receives SOS broadcasts. Empty disables channel posts.
	GuardianChannelID string `json:"GuardianChannelID"`

	// EnableCapture allows the client camera and microphone to be used during an SOS
	EnableCapture bool `json:"EnableCapture"`

	TwilioAccountSID     string `json:"TwilioAccountSID"`
	TwilioAuthToken      string `json:"TwilioAuthToken"`
	TwilioFromNumber     string `json:"TwilioFromNumber"`
	GuardianPhoneNumbers string `json:"GuardianPhoneNumbers"`

	SendGridAPIKey    string `json:"SendGridAPIKey"`
	SendGridFromEmail string `json:"SendGridFromEmail"`
	GuardianEmails    string `json:"GuardianEmails"`

	BotUsername    string `json:"BotUsername"`
	BotDisplayName string `json:"BotDisplayName"`
}

// Clone shallow copies the configuration. Every field is a value type.
func (c *configuration) Clone() *configuration {
	clone := *c
	return &clone
}

// providerConfig maps the provider settings onto the intelligence gateway's config.
// An empty type falls back to the offline provider.
func (c *configuration) providerConfig() intel.ProviderConfig {
	providerType := c.ProviderType
	if providerType == "" {
		providerType = intel.OfflineType
	}

	return intel.ProviderConfig{
		Type:              providerType,
		URL:               c.ProviderURL,
		APIKey:            c.ProviderAPIKey,
		Model:             c.ProviderModel,
		TimeoutSeconds:    c.ProviderTimeoutSeconds,
		RequestsPerMinute: c.ProviderRequestsPerMinute,
	}
}

// notifyConfig maps the SMS and email settings onto the notifier's config.
func (c *configuration) notifyConfig() notify.Config {
	return notify.Config{
		TwilioAccountSID:  c.TwilioAccountSID,
		TwilioAuthToken:   c.TwilioAuthToken,
		TwilioFromNumber:  c.TwilioFromNumber,
		GuardianPhones:    notify.ParseList(c.GuardianPhoneNumbers),
		SendGridAPIKey:    c.SendGridAPIKey,
		SendGridFromName:  c.botDisplayName(),
		SendGridFromEmail: c.SendGridFromEmail,
		GuardianEmails:    notify.ParseList(c.GuardianEmails),
	}
}

func (c *configuration) botUsername() string {
	if c.BotUsername == "" {
		return defaultBotUsername
	}
	return c.BotUsername
}

func (c *configuration) botDisplayName() string {
	if c.BotDisplayName == "" {
		return defaultBotDisplayName
	}
	return c.BotDisplayName
}

// validate checks the settings that cannot be repaired with defaults.
func (c *configuration) validate() error {
	if err := intel.ValidateProviderConfig(c.providerConfig()); err != nil {
		return errors.Wrap(err, "invalid provider configuration")
	}

	if c.TwilioAccountSID != "" && (c.TwilioAuthToken == "" || c.TwilioFromNumber == "") {
		return errors.New("twilio requires an auth token and a from number")
	}

	if c.SendGridAPIKey != "" && c.SendGridFromEmail == "" {
		return errors.New("sendgrid requires a from email")
	}

	return nil
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin. If that hook attempts to acquire this lock, a deadlock may occur.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// OnConfigurationChange is invoked when configuration changes may have been made.
// Live sessions keep running: the provider and the notifier are swapped in place.
func (p *Plugin) OnConfigurationChange() error {
	var newConfig = new(configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	if err := p.API.LoadPluginConfiguration(newConfig); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := newConfig.validate(); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}

	oldConfig := p.getConfiguration()
	p.setConfiguration(newConfig)

	// Hooks may fire before OnActivate has built the components
	if p.gateway != nil && newConfig.providerConfig() != oldConfig.providerConfig() {
		p.applyProvider(newConfig)
	}

	if p.broadcaster != nil {
		p.broadcaster.configure(newConfig.GuardianChannelID, notify.New(newConfig.notifyConfig(), &p.client.Log))
	}

	return nil
}

// applyProvider swaps the gateway's provider. A provider that cannot be built
// leaves the gateway serving the fallback report.
func (p *Plugin) applyProvider(config *configuration) {
	providerConfig := config.providerConfig()

	provider, err := intel.Create(providerConfig, &p.client.Log)
	if err != nil {
		p.API.LogError("Failed to create intelligence provider, serving fallback reports", "type", providerConfig.Type, "error", err.Error())
	}

	p.gateway.SetProvider(provider, providerConfig)
	p.API.LogInfo("Intelligence provider configured", "type", p.gateway.ProviderType())
}
