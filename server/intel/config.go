package intel

import "time"

// Constants for provider behavior and thresholds
const (
	// DefaultTimeout bounds a single provider round trip when no timeout is configured
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerMinute is the provider request budget when none is configured
	DefaultRequestsPerMinute = 30

	// DefaultBurst is how many provider requests may be issued back to back
	DefaultBurst = 5

	// BreakerFailureThreshold is the number of consecutive provider failures
	// after which the breaker opens and the gateway serves the fallback directly
	BreakerFailureThreshold = 5

	// BreakerOpenTimeout is how long the breaker stays open before probing again
	BreakerOpenTimeout = 60 * time.Second
)

// ProviderConfig represents the configuration for the intelligence provider.
type ProviderConfig struct {
	// Type is the provider type (e.g., "gemini", "offline")
	Type string `json:"type"`

	// URL is the base API URL for this provider
	URL string `json:"url"`

	// APIKey is the provider API key
	APIKey string `json:"apiKey"`

	// Model is the provider model name (provider-specific)
	Model string `json:"model"`

	// TimeoutSeconds bounds a single request (0 means DefaultTimeout)
	TimeoutSeconds int `json:"timeoutSeconds"`

	// RequestsPerMinute caps the provider request rate (0 means DefaultRequestsPerMinute)
	RequestsPerMinute int `json:"requestsPerMinute"`
}

// Timeout returns the effective request timeout.
func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimit returns the effective requests-per-minute budget.
func (c ProviderConfig) RateLimit() int {
	if c.RequestsPerMinute <= 0 {
		return DefaultRequestsPerMinute
	}
	return c.RequestsPerMinute
}
