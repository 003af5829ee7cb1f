package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts rate limit outcomes.
type Metrics struct {
	Decisions         *prometheus.CounterVec
	FallbackDecisions prometheus.Counter
	StoreErrors       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofgate_ratelimit_decisions_total",
			Help: "Rate limit checks by outcome",
		}, []string{"outcome"}),
		FallbackDecisions: f.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_ratelimit_fallback_total",
			Help: "Rate limit checks served by the in-memory fallback",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_ratelimit_store_errors_total",
			Help: "Rate limit store failures",
		}),
	}
}

func (m *Metrics) RecordDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.FallbackDecisions.Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
