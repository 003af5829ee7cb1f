package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"proofgate/internal/verification/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementRequestsCreated()
	m.IncrementTransition(models.StatusApproved)
	m.IncrementTransition(models.StatusApproved)
	m.IncrementTransition(models.StatusExpired)
	m.AddReaperExpired(3)
	m.AddReaperExpired(0)
	m.IncrementIDCollision("proof")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestTransitions.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestTransitions.WithLabelValues("expired")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReaperExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IDCollisions.WithLabelValues("proof")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementRequestsCreated()
		m.IncrementTransition(models.StatusRejected)
		m.IncrementProofsIssued()
		m.IncrementProofsRevoked()
		m.AddReaperExpired(1)
		m.IncrementAnchorFailures()
		m.IncrementIDCollision("request")
	})
}
