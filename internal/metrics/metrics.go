// Package metrics exposes Prometheus collectors for the board service.
// Every method is safe on a nil *Metrics so components can run unobserved.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boardwalk"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	BoardsCreated    *prometheus.CounterVec
	RenderDuration   *prometheus.HistogramVec
	CatalogueSize    prometheus.Gauge
	UpstreamRequests *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of MCP tool calls",
			},
			[]string{"tool", "outcome"}, // outcome: ok|error
		),
		BoardsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boards_created_total",
				Help:      "Total number of boards catalogued",
			},
			[]string{"format"}, // format: raster|vector
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_seconds",
				Help:      "Board render duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"format"},
		),
		CatalogueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalogue_size",
				Help:      "Number of boards currently catalogued",
			},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests made to external HTTP services",
			},
			[]string{"service", "status"}, // status: ok|error|cached
		),
	}

	m.registry.MustRegister(
		m.ToolCalls,
		m.BoardsCreated,
		m.RenderDuration,
		m.CatalogueSize,
		m.UpstreamRequests,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall counts one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// ObserveRender records how long one render took.
func (m *Metrics) ObserveRender(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.RenderDuration.WithLabelValues(format).Observe(d.Seconds())
}

// BoardCreated counts a catalogued board.
func (m *Metrics) BoardCreated(format string) {
	if m == nil {
		return
	}
	m.BoardsCreated.WithLabelValues(format).Inc()
}

// SetCatalogueSize reports the current number of boards.
func (m *Metrics) SetCatalogueSize(n int) {
	if m == nil {
		return
	}
	m.CatalogueSize.Set(float64(n))
}

// ObserveUpstream counts one request to an external service.
func (m *Metrics) ObserveUpstream(service, status string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(service, status).Inc()
}
