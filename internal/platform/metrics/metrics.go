package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh and login outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the session and guard collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RefreshTotal     *prometheus.CounterVec
	RefreshCoalesced prometheus.Counter
	RefreshDuration  prometheus.Histogram
	LoginTotal       *prometheus.CounterVec
	LogoutTotal      prometheus.Counter
	GuardDecisions   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, so several managers (or
// tests) can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consoleauth_refresh_total",
			Help: "Token refresh round trips by outcome",
		}, []string{"outcome"}),
		RefreshCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "consoleauth_refresh_coalesced_total",
			Help: "Refresh calls that joined an in-flight refresh instead of issuing their own",
		}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "consoleauth_refresh_duration_seconds",
			Help:    "Latency of token refresh round trips",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LoginTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consoleauth_login_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		LogoutTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "consoleauth_logout_total",
			Help: "Local logouts, including forced ones",
		}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consoleauth_guard_decisions_total",
			Help: "Guard evaluations by guard kind and outcome",
		}, []string{"guard", "outcome"}),
	}
}

// ObserveRefresh records one refresh round trip. Nil receivers are no-ops so
// components can run without metrics.
func (m *Metrics) ObserveRefresh(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(seconds)
}

func (m *Metrics) IncrementRefreshCoalesced() {
	if m == nil {
		return
	}
	m.RefreshCoalesced.Inc()
}

func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLogout() {
	if m == nil {
		return
	}
	m.LogoutTotal.Inc()
}

func (m *Metrics) IncrementGuardDecision(guard, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, outcome).Inc()
}
