// Package metrics exposes Prometheus instrumentation for the settlement core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the settlement core's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so callers never need to guard.
type Metrics struct {
	settlements    *prometheus.CounterVec
	legSubmissions prometheus.Counter
	legRetries     prometheus.Counter
	confirmLatency prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recircle",
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Settlements finished, by overall status.",
		}, []string{"status"}),
		legSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recircle",
			Subsystem: "settlement",
			Name:      "leg_submissions_total",
			Help:      "Ledger transaction submissions across all legs.",
		}),
		legRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recircle",
			Subsystem: "settlement",
			Name:      "leg_retries_total",
			Help:      "Submission retries caused by transient ledger failures.",
		}),
		confirmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recircle",
			Subsystem: "settlement",
			Name:      "confirm_latency_seconds",
			Help:      "Time from submission acceptance to on-chain confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(m.settlements, m.legSubmissions, m.legRetries, m.confirmLatency)
	return m
}

// IncSettlements counts a finished settlement by overall status.
func (m *Metrics) IncSettlements(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

// IncLegSubmissions counts one ledger submission.
func (m *Metrics) IncLegSubmissions() {
	if m == nil {
		return
	}
	m.legSubmissions.Inc()
}

// IncLegRetries counts one transient-failure retry.
func (m *Metrics) IncLegRetries() {
	if m == nil {
		return
	}
	m.legRetries.Inc()
}

// ObserveConfirmLatency records one leg's confirmation wait.
func (m *Metrics) ObserveConfirmLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(d.Seconds())
}
