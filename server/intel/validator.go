package intel

import (
	"fmt"
	"net/url"
)

// ValidateProviderConfig validates the provider configuration.
// An empty type is treated as the offline provider and is always valid.
func ValidateProviderConfig(config ProviderConfig) error {
	if config.Type == "" || config.Type == OfflineType {
		return nil
	}

	if !IsRegistered(config.Type) {
		return fmt.Errorf("unsupported provider type '%s'", config.Type)
	}

	if err := validateURL(config.URL); err != nil {
		return fmt.Errorf("provider '%s': %w", config.Type, err)
	}

	if config.APIKey == "" {
		return fmt.Errorf("provider '%s': missing required field 'apiKey'", config.Type)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("provider '%s': timeout cannot be negative (got %d)", config.Type, config.TimeoutSeconds)
	}

	if config.RequestsPerMinute < 0 {
		return fmt.Errorf("provider '%s': requests per minute cannot be negative (got %d)", config.Type, config.RequestsPerMinute)
	}

	return nil
}

// validateURL checks that the URL is valid and uses HTTPS
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("url must use HTTPS (got %s)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("url must include a hostname")
	}

	return nil
}
