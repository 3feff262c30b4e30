package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded by RecordRequest
const (
	OutcomeSuccess   = "success"
	OutcomeViolation = "violation"
	OutcomeAPIError  = "api_error"
	OutcomeTransport = "transport_error"
)

// Restart reasons recorded by RecordRestart
const (
	ReasonUnhealthy     = "unhealthy"
	ReasonConfigChanged = "config_changed"
)

// Collector holds the Prometheus metrics for the gateway client and the
// watchdog. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	violations      *prometheus.CounterVec
	healthChecks    *prometheus.CounterVec
	gatewayUp       prometheus.Gauge
	restarts        *prometheus.CounterVec
	startFailures   prometheus.Counter
}

// NewCollector creates a collector and registers its metrics. A nil registry
// gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardchat",
				Name:      "chat_requests_total",
				Help:      "Chat completion requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guardchat",
				Name:      "chat_request_duration_seconds",
				Help:      "Chat completion round-trip latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardchat",
				Name:      "guardrail_violations_total",
				Help:      "Detected guardrail violations by code",
			},
			[]string{"code"},
		),
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardchat",
				Subsystem: "gateway",
				Name:      "health_checks_total",
				Help:      "Gateway health checks by result",
			},
			[]string{"result"},
		),
		gatewayUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "guardchat",
				Subsystem: "gateway",
				Name:      "up",
				Help:      "Gateway health from the last check (1=healthy, 0=unhealthy)",
			},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardchat",
				Subsystem: "gateway",
				Name:      "restarts_total",
				Help:      "Gateway starts and restarts issued by the watchdog",
			},
			[]string{"reason"},
		),
		startFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardchat",
				Subsystem: "gateway",
				Name:      "start_failures_total",
				Help:      "Gateway launches that did not become healthy",
			},
		),
	}

	registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.violations,
		c.healthChecks,
		c.gatewayUp,
		c.restarts,
		c.startFailures,
	)

	return c
}

// Registry returns the registry the metrics are registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a finished chat completion request
func (c *Collector) RecordRequest(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(outcome).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

// RecordViolations counts each violation code of a blocked request
func (c *Collector) RecordViolations(codes []string) {
	if c == nil {
		return
	}
	for _, code := range codes {
		c.violations.WithLabelValues(code).Inc()
	}
}

// RecordHealth records a gateway health check result
func (c *Collector) RecordHealth(healthy bool) {
	if c == nil {
		return
	}
	if healthy {
		c.healthChecks.WithLabelValues("healthy").Inc()
		c.gatewayUp.Set(1)
		return
	}
	c.healthChecks.WithLabelValues("unhealthy").Inc()
	c.gatewayUp.Set(0)
}

// RecordRestart records a gateway (re)start issued for reason
func (c *Collector) RecordRestart(reason string) {
	if c == nil {
		return
	}
	c.restarts.WithLabelValues(reason).Inc()
}

// RecordStartFailure records a launch that failed
func (c *Collector) RecordStartFailure() {
	if c == nil {
		return
	}
	c.startFailures.Inc()
}
