// Package telemetry exposes the dispatcher's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the four Prometheus series the dispatcher exposes.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	WorkerHealth   *prometheus.GaugeVec
	ActiveConns    *prometheus.GaugeVec
}

// New returns a fresh, unregistered set of metrics. MustRegister
// attaches them to a registerer, so tests can give each instance a
// private registry and never collide on the global default one.
func New() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lb_requests_total",
				Help: "Total requests processed by worker",
			},
			[]string{"worker", "status"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lb_request_duration_ms",
				Help:    "Request duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 15),
			},
			[]string{"worker"},
		),
		WorkerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lb_worker_health",
				Help: "Worker health status (1=healthy, 0=unhealthy)",
			},
			[]string{"worker"},
		),
		ActiveConns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lb_worker_active_connections",
				Help: "Active connections per worker",
			},
			[]string{"worker"},
		),
	}
	return m
}

// MustRegister registers all series against reg (use
// prometheus.NewRegistry() in tests, prometheus.DefaultRegisterer in
// production).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.RequestsTotal, m.RequestLatency, m.WorkerHealth, m.ActiveConns)
}

// Handler returns the promhttp handler for the given registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
