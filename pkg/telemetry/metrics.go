package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes gateway counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	latencyMs       *prometheus.HistogramVec
	groundedTotal   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	circuitOpen     *prometheus.CounterVec
	proxyDowngrades prometheus.Counter
}

// NewMetrics creates the metric set.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geogate_requests_total",
			Help: "Requests processed by the gateway.",
		}, []string{"vendor", "model", "outcome"}),
		latencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geogate_request_latency_ms",
			Help:    "Request latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"vendor", "model"}),
		groundedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geogate_grounded_requests_total",
			Help: "Grounding-mode requests by effectiveness.",
		}, []string{"vendor", "mode", "effective"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geogate_retries_total",
			Help: "Retry attempts by vendor.",
		}, []string{"vendor"}),
		circuitOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geogate_circuit_open_rejections_total",
			Help: "Calls rejected fail-fast by an open circuit.",
		}, []string{"vendor", "model"}),
		proxyDowngrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geogate_proxy_downgrades_total",
			Help: "Vantage downgrades from proxied to ALS-only egress.",
		}),
	}
	r.MustRegister(m.requestsTotal, m.latencyMs, m.groundedTotal, m.retriesTotal, m.circuitOpen, m.proxyDowngrades)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements Emitter so metrics ride the same emission path as the
// flat record.
func (m *Metrics) Emit(record *Record) error {
	if m == nil || record == nil {
		return nil
	}
	outcome := "success"
	if !record.Success {
		outcome = record.ErrorClass
		if outcome == "" {
			outcome = "error"
		}
	}
	m.requestsTotal.WithLabelValues(record.Vendor, record.Model, outcome).Inc()
	m.latencyMs.WithLabelValues(record.Vendor, record.Model).Observe(float64(record.LatencyMS))
	if record.GroundingModeRequested != "" && record.GroundingModeRequested != "NONE" {
		effective := "false"
		if record.GroundedEffective {
			effective = "true"
		}
		m.groundedTotal.WithLabelValues(record.Vendor, record.GroundingModeRequested, effective).Inc()
	}
	if record.RetryCount > 0 {
		m.retriesTotal.WithLabelValues(record.Vendor).Add(float64(record.RetryCount))
	}
	if record.ErrorClass == "CIRCUIT_OPEN" {
		m.circuitOpen.WithLabelValues(record.Vendor, record.Model).Inc()
	}
	if record.ProxyDowngraded {
		m.proxyDowngrades.Inc()
	}
	return nil
}
