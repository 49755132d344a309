package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ObserveRefresh(OutcomeSuccess, 0.02)
	a.IncrementGuardDecision("route", "allow")

	assert.Equal(t, float64(1), testutil.ToFloat64(a.RefreshTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.RefreshTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.GuardDecisions.WithLabelValues("route", "allow")))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRefresh(OutcomeFailure, 1)
		m.IncrementRefreshCoalesced()
		m.IncrementLogin(OutcomeSuccess)
		m.IncrementLogout()
		m.IncrementGuardDecision("render", "deny")
	})
}
