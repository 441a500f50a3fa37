// Package metrics exposes counters for login and token-exchange outcomes.
// A nil *Metrics is valid and records nothing, so flows do not need to
// special-case unconfigured observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	loginAttempts  *prometheus.CounterVec
	loginFailures  *prometheus.CounterVec
	tokenExchanges *prometheus.CounterVec
}

// New creates the metric set and registers it on reg. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinoteca_login_attempts_total",
			Help: "Login attempts started, by flow.",
		}, []string{"flow"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinoteca_login_failures_total",
			Help: "Login attempts that ended in a terminal failure.",
		}, []string{"flow", "reason"}),
		tokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinoteca_token_exchanges_total",
			Help: "Authorization-code exchanges, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.loginAttempts, m.loginFailures, m.tokenExchanges)
	}
	return m
}

func (m *Metrics) LoginAttempt(flow string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(flow).Inc()
}

func (m *Metrics) LoginFailure(flow, reason string) {
	if m == nil {
		return
	}
	m.loginFailures.WithLabelValues(flow, reason).Inc()
}

func (m *Metrics) TokenExchange(outcome string) {
	if m == nil {
		return
	}
	m.tokenExchanges.WithLabelValues(outcome).Inc()
}
