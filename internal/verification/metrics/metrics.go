package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"proofgate/internal/verification/models"
)

// Metrics provides observability for the verification lifecycle.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	RequestTransitions *prometheus.CounterVec
	ProofsIssued       prometheus.Counter
	ProofsRevoked      prometheus.Counter
	ReaperExpired      prometheus.Counter
	AnchorFailures     prometheus.Counter
	IDCollisions       *prometheus.CounterVec
}

// New registers verification metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_requests_created_total",
			Help: "Total number of verification requests created",
		}),
		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proofgate_request_transitions_total",
			Help: "Total number of verification request status transitions by target status",
		}, []string{"to"}),
		ProofsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_proofs_issued_total",
			Help: "Total number of proofs issued on approval",
		}),
		ProofsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_proofs_revoked_total",
			Help: "Total number of proofs revoked by their subject",
		}),
		ReaperExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_reaper_expired_total",
			Help: "Total number of pending requests expired by the background sweep",
		}),
		AnchorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofgate_anchor_failures_total",
			Help: "Total number of anchor calls that failed or were skipped while the breaker was open",
		}),
		IDCollisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proofgate_id_collisions_total",
			Help: "Total number of generated identifiers that collided with an existing record",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementRequestsCreated() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
}

func (m *Metrics) IncrementTransition(to models.Status) {
	if m == nil {
		return
	}
	m.RequestTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) IncrementProofsIssued() {
	if m == nil {
		return
	}
	m.ProofsIssued.Inc()
}

func (m *Metrics) IncrementProofsRevoked() {
	if m == nil {
		return
	}
	m.ProofsRevoked.Inc()
}

// AddReaperExpired counts requests expired by one sweep.
func (m *Metrics) AddReaperExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReaperExpired.Add(float64(n))
}

func (m *Metrics) IncrementAnchorFailures() {
	if m == nil {
		return
	}
	m.AnchorFailures.Inc()
}

// IncrementIDCollision records a retry; kind is "request" or "proof".
func (m *Metrics) IncrementIDCollision(kind string) {
	if m == nil {
		return
	}
	m.IDCollisions.WithLabelValues(kind).Inc()
}
