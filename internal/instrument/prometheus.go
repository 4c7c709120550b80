// Package instrument: Prometheus counters for sessions and server verdicts.
package instrument

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds one registry; client and server each own one.
type Metrics struct {
	reg *prometheus.Registry

	sessions *prometheus.CounterVec
	duration prometheus.Histogram
	verdicts *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chalresp_sessions_total",
				Help: "Client sessions by outcome (success, failure, or error reason)",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chalresp_session_duration_seconds",
				Help:    "Wall time of one request/challenge/response/status round",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chalresp_server_verdicts_total",
				Help: "Server verdicts by result (success, failure, error)",
			},
			[]string{"verdict"},
		),
	}
	m.reg.MustRegister(m.sessions, m.duration, m.verdicts)
	return m
}

// Session records a finished client session.
func (m *Metrics) Session(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// Verdict records a server-side verdict.
func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
