package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential module.
type Metrics struct {
	CredentialsImported    prometheus.Counter
	CredentialsDeactivated prometheus.Counter
	ResolveDuration        prometheus.Histogram
}

// New registers credential metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_credentials_imported_total",
			Help: "Total number of credentials imported",
		}),
		CredentialsDeactivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_credentials_deactivated_total",
			Help: "Total number of credentials deactivated by their subject",
		}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofgate_credential_resolve_duration_seconds",
			Help:    "Duration of credential resolution on the approval path",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementImported() {
	if m == nil {
		return
	}
	m.CredentialsImported.Inc()
}

func (m *Metrics) IncrementDeactivated() {
	if m == nil {
		return
	}
	m.CredentialsDeactivated.Inc()
}

// ObserveResolve records the duration of a Resolve call started at start.
func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
