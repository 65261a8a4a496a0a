// v0
// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the agent collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	registry     *prometheus.Registry
	pollCycles   *prometheus.CounterVec
	scans        *prometheus.CounterVec
	connected    prometheus.Gauge
	mirrorErrors *prometheus.CounterVec
	cbState      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_poll_cycles_total",
			Help: "Poll loop iterations by state (idle, active).",
		}, []string{"state"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_scans_total",
			Help: "Device scans by device and result.",
		}, []string{"device", "result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_connector_connected",
			Help: "1 while the platform session is connected.",
		}),
		mirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_mirror_errors_total",
			Help: "Failed mirror writes by mirror.",
		}, []string{"mirror"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edge_breaker_state",
			Help: "Circuit breaker state gauge (0 closed, 1 open, 2 half-open).",
		}, []string{"target"}),
	}
	m.registry.MustRegister(
		m.pollCycles,
		m.scans,
		m.connected,
		m.mirrorErrors,
		m.cbState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PollCycle(state string) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(state).Inc()
}

func (m *Metrics) Scan(device, result string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(device, result).Inc()
}

func (m *Metrics) SetConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) MirrorError(mirror string) {
	if m == nil {
		return
	}
	m.mirrorErrors.WithLabelValues(mirror).Inc()
}

func (m *Metrics) BreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(float64(state))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
