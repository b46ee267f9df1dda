package intel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Outcomes reported to the Recorder
const (
	OutcomeProvider = "provider"
	OutcomeFallback = "fallback"
)

// CriticalSituationPrefix opens the situation text of an active SOS.
const CriticalSituationPrefix = "CRITICAL SOS:"

// ErrRateLimited is returned internally when the provider budget is exhausted.
var ErrRateLimited = errors.New("provider request budget exhausted")

// Recorder receives one observation per gateway call.
type Recorder interface {
	ObserveIntel(providerType, outcome string, elapsed time.Duration)
}

// Gateway issues intelligence requests and always resolves to a valid report.
// Provider failures, throttling, an open breaker, invalid payloads and panics
// all resolve to FallbackReport.
type Gateway struct {
	mu       sync.RWMutex
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	timeout  time.Duration

	logger   Logger
	recorder Recorder
}

// NewGateway creates a gateway around provider. recorder may be nil.
func NewGateway(provider Provider, config ProviderConfig, logger Logger, recorder Recorder) *Gateway {
	g := &Gateway{
		logger:   logger,
		recorder: recorder,
	}
	g.SetProvider(provider, config)
	return g
}

// SetProvider swaps the provider and resets the breaker and limiter.
// Requests already in flight finish against the previous provider.
func (g *Gateway) SetProvider(provider Provider, config ProviderConfig) {
	if provider == nil {
		provider = offlineProvider{}
	}

	rpm := config.RateLimit()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "intel-" + provider.GetType(),
		Timeout: BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("Intelligence provider breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	g.provider = provider
	g.breaker = breaker
	g.limiter = rate.NewLimiter(rate.Limit(rpm)/60, DefaultBurst)
	g.timeout = config.Timeout()
}

// ProviderType returns the type of the active provider.
func (g *Gateway) ProviderType() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.provider.GetType()
}

// GetTacticalAdvice asks the provider for a report on situation at loc.
// It never returns nil and never returns an error.
func (g *Gateway) GetTacticalAdvice(ctx context.Context, situation string, loc *Location) (report *Report) {
	g.mu.RLock()
	provider, breaker, limiter, timeout := g.provider, g.breaker, g.limiter, g.timeout
	g.mu.RUnlock()

	started := time.Now()
	outcome := OutcomeProvider

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Intelligence provider panicked", "provider", provider.GetType(), "panic", fmt.Sprint(r))
			report = FallbackReport(loc)
			outcome = OutcomeFallback
		}
		if g.recorder != nil {
			g.recorder.ObserveIntel(provider.GetType(), outcome, time.Since(started))
		}
	}()

	result, err := g.fetch(ctx, provider, breaker, limiter, timeout, Request{
		Situation: situation,
		Location:  copyLocation(loc),
		Critical:  strings.HasPrefix(situation, CriticalSituationPrefix),
	})
	if err != nil {
		g.logger.Warn("Intelligence request failed, serving fallback report",
			"provider", provider.GetType(),
			"error", err.Error())
		outcome = OutcomeFallback
		return FallbackReport(loc)
	}

	g.logger.Debug("Intelligence report received",
		"provider", provider.GetType(),
		"riskLevel", string(result.RiskLevel),
		"zones", len(result.TacticalZones),
		"pois", len(result.NearbyPOIs))

	return result
}

func (g *Gateway) fetch(ctx context.Context, provider Provider, breaker *gobreaker.CircuitBreaker, limiter *rate.Limiter, timeout time.Duration, req Request) (*Report, error) {
	// An active emergency is never held back by routine refreshes
	if !req.Critical && !limiter.Allow() {
		return nil, ErrRateLimited
	}

	value, err := breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		raw, err := provider.GetReport(callCtx, req)
		if err != nil {
			return nil, err
		}
		return normalizeReport(raw, req.Location, g.logger)
	})
	if err != nil {
		return nil, err
	}

	return value.(*Report), nil
}

// normalizeReport checks required fields, drops malformed zones and points of
// interest, clamps signal strength and fills in missing POI distances.
func normalizeReport(raw *Report, loc *Location, logger Logger) (*Report, error) {
	if raw == nil {
		return nil, fmt.Errorf("provider returned no report")
	}
	if !raw.RiskLevel.Valid() {
		return nil, fmt.Errorf("invalid risk level %q", raw.RiskLevel)
	}
	if raw.Summary == "" {
		return nil, fmt.Errorf("report missing summary")
	}

	report := &Report{
		RiskLevel:       raw.RiskLevel,
		Summary:         raw.Summary,
		CityName:        raw.CityName,
		Recommendations: append([]string{}, raw.Recommendations...),
		TacticalZones:   make([]Zone, 0, len(raw.TacticalZones)),
		NearbyPOIs:      make([]Device, 0, len(raw.NearbyPOIs)),
	}

	for _, zone := range raw.TacticalZones {
		if zone.ID == "" || (zone.Type != ZoneRed && zone.Type != ZoneGreen) || zone.Radius <= 0 {
			logger.Debug("Dropping malformed tactical zone", "zoneId", zone.ID, "type", string(zone.Type))
			continue
		}
		report.TacticalZones = append(report.TacticalZones, zone)
	}

	for _, poi := range CloneDevices(raw.NearbyPOIs) {
		if poi.ID == "" || poi.Label == "" || poi.Lat == nil || poi.Lng == nil {
			logger.Debug("Dropping malformed point of interest", "poiId", poi.ID)
			continue
		}
		if !poi.Type.IsPOI() {
			logger.Warn("Dropping point of interest with a non-POI category", "poiId", poi.ID, "type", string(poi.Type))
			continue
		}
		if poi.SignalStrength < 0 {
			poi.SignalStrength = 0
		} else if poi.SignalStrength > 1 {
			poi.SignalStrength = 1
		}
		if poi.Distance <= 0 && loc != nil {
			poi.Distance = DistanceKm(loc.Lat, loc.Lng, *poi.Lat, *poi.Lng)
		}
		report.NearbyPOIs = append(report.NearbyPOIs, poi)
	}

	return report, nil
}

func copyLocation(loc *Location) *Location {
	if loc == nil {
		return nil
	}
	c := *loc
	return &c
}
