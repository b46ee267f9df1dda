package gemini

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// ProviderType is the registered type name of this provider
const ProviderType = "gemini"

// DefaultModel is used when the configuration leaves the model empty
const DefaultModel = "gemini-3-pro-preview"

// init registers the Gemini provider factory
func init() {
	intel.RegisterProviderFactory(ProviderType, func(config intel.ProviderConfig, logger intel.Logger) (intel.Provider, error) {
		provider, err := New(config, logger)
		if err != nil {
			return nil, err
		}
		return provider, nil
	})
}

// Provider implements intel.Provider on top of the generateContent API
type Provider struct {
	config    intel.ProviderConfig
	apiClient *APIClient
}

// New creates a new Gemini provider instance
func New(config intel.ProviderConfig, logger intel.Logger) (*Provider, error) {
	if config.Type != ProviderType {
		return nil, fmt.Errorf("invalid provider type: %s (expected: %s)", config.Type, ProviderType)
	}
	if config.URL == "" {
		return nil, fmt.Errorf("provider URL is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		config:    config,
		apiClient: NewAPIClient(config.URL, config.APIKey, model, config.Timeout(), logger),
	}, nil
}

// GetReport requests a structured report for the situation
func (p *Provider) GetReport(ctx context.Context, req intel.Request) (*intel.Report, error) {
	return p.apiClient.GenerateReport(ctx, req)
}

// GetType returns the provider type
func (p *Provider) GetType() string {
	return ProviderType
}
