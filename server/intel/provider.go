package intel

import "context"

// Request is what the gateway asks a provider for: a free-form situation and
// the user's position, if one is known.
type Request struct {
	Situation string
	Location  *Location

	// Critical marks a request raised by an active SOS. It skips the rate limiter.
	Critical bool
}

// Provider defines the interface every intelligence source must satisfy.
// Each provider type (e.g., Gemini) turns a Request into a structured Report.
type Provider interface {
	// GetReport asks the remote source for a report.
	// Any transport, status or decoding failure is returned as an error; the
	// gateway is responsible for converting it into a fallback report.
	GetReport(ctx context.Context, req Request) (*Report, error)

	// GetType returns the provider type (e.g., "gemini").
	GetType() string
}
