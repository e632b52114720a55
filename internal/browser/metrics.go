package browser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks provisioner counters. Register against the default
// registerer in production and a fresh registry in tests.
type Metrics struct {
	bootstraps      *prometheus.CounterVec
	actions         *prometheus.CounterVec
	replacements    *prometheus.CounterVec
	actionDuration  prometheus.Histogram
	sessionAlive    prometheus.Gauge
	stagedDownloads *prometheus.CounterVec
}

// NewMetrics creates and registers the provisioner metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browsermcp_bootstraps_total",
			Help: "Browser bootstrap attempts by outcome.",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browsermcp_actions_total",
			Help: "Browser actions executed by kind and outcome.",
		}, []string{"action", "outcome"}),
		replacements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browsermcp_session_replacements_total",
			Help: "Session replacements by reason.",
		}, []string{"reason"}),
		actionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "browsermcp_action_duration_seconds",
			Help:    "Latency of browser actions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		sessionAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browsermcp_session_alive",
			Help: "Whether a live browser session currently exists.",
		}),
		stagedDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browsermcp_artifact_downloads_total",
			Help: "Artifact downloads by target and outcome.",
		}, []string{"target", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.bootstraps, m.actions, m.replacements,
			m.actionDuration, m.sessionAlive, m.stagedDownloads)
	}
	return m
}

func (m *Metrics) RecordBootstrap(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.bootstraps.WithLabelValues(outcome).Inc()
	if err == nil {
		m.sessionAlive.Set(1)
	}
}

func (m *Metrics) RecordAction(action string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.actionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordReplacement(reason string) {
	if m == nil {
		return
	}
	m.replacements.WithLabelValues(reason).Inc()
	m.sessionAlive.Set(0)
}

func (m *Metrics) RecordDownload(target Target, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.stagedDownloads.WithLabelValues(string(target), outcome).Inc()
}
