// Package metrics exposes Prometheus metrics for guardian sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guardian"

// Collector owns a private registry so several plugin activations (and tests)
// never collide on the default registerer.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive      prometheus.Gauge
	transitionsTotal    *prometheus.CounterVec
	intelRequestsTotal  *prometheus.CounterVec
	intelDuration       *prometheus.HistogramVec
	captureStartsTotal  *prometheus.CounterVec
	broadcastsTotal     *prometheus.CounterVec
	locationErrorsTotal prometheus.Counter
}

// NewCollector creates and registers all guardian metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live session controllers",
		}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of status transitions",
		}, []string{"from", "to"}),
		intelRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intel_requests_total",
			Help:      "Total number of intelligence gateway calls by outcome",
		}, []string{"provider", "outcome"}),
		intelDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intel_request_duration_seconds",
			Help:      "Intelligence gateway call duration",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		captureStartsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_starts_total",
			Help:      "Media capture start attempts by result",
		}, []string{"result"}),
		broadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Guardian broadcasts by alert kind and result",
		}, []string{"kind", "result"}),
		locationErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_errors_total",
			Help:      "Geolocation watch errors reported by clients",
		}),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveIntel records one gateway call.
func (c *Collector) ObserveIntel(providerType, outcome string, elapsed time.Duration) {
	c.intelRequestsTotal.WithLabelValues(providerType, outcome).Inc()
	c.intelDuration.WithLabelValues(providerType).Observe(elapsed.Seconds())
}

// ObserveTransition records a status change.
func (c *Collector) ObserveTransition(from, to string) {
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveCapture records a capture start attempt.
func (c *Collector) ObserveCapture(started bool) {
	c.captureStartsTotal.WithLabelValues(result(started)).Inc()
}

// ObserveBroadcast records a guardian broadcast.
func (c *Collector) ObserveBroadcast(kind string, delivered bool) {
	c.broadcastsTotal.WithLabelValues(kind, result(delivered)).Inc()
}

// ObserveLocationError counts a reported watch error.
func (c *Collector) ObserveLocationError() {
	c.locationErrorsTotal.Inc()
}

// SetActiveSessions sets the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
