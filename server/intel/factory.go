package intel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// OfflineType is the provider type that never reaches a remote source.
const OfflineType = "offline"

// ErrProviderDisabled is returned by the offline provider for every request.
var ErrProviderDisabled = errors.New("intelligence provider disabled")

// Factory is a function type that creates a provider instance
type Factory func(config ProviderConfig, logger Logger) (Provider, error)

// factoryRegistry maps provider types to their factory functions
var (
	factoryMu       sync.RWMutex
	factoryRegistry = map[string]Factory{
		OfflineType: func(ProviderConfig, Logger) (Provider, error) {
			return offlineProvider{}, nil
		},
	}
)

// RegisterProviderFactory registers a provider factory for a given type.
// Provider packages call this from init.
func RegisterProviderFactory(providerType string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryRegistry[providerType] = factory
}

// IsRegistered reports whether a factory exists for providerType.
func IsRegistered(providerType string) bool {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	_, ok := factoryRegistry[providerType]
	return ok
}

// Create creates a new provider instance based on the provided configuration.
// Returns an error if the provider type is unknown or if creation fails.
func Create(config ProviderConfig, logger Logger) (Provider, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("provider type is required")
	}

	factoryMu.RLock()
	factory, exists := factoryRegistry[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}

	return factory(config, logger)
}

// offlineProvider always fails so the gateway serves the fallback report.
type offlineProvider struct{}

func (offlineProvider) GetReport(context.Context, Request) (*Report, error) {
	return nil, ErrProviderDisabled
}

func (offlineProvider) GetType() string {
	return OfflineType
}
