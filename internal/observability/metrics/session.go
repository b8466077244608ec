package metrics

// Package metrics exposes Prometheus collectors for the session subsystem.

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by callers.
const (
	OutcomeOK = "ok"
)

// Session holds the session store and gate collectors. It satisfies service.SessionMetrics.
type Session struct {
	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ObserverEvents *prometheus.CounterVec
	GateDecisions  *prometheus.CounterVec
}

// NewSession creates the collectors and registers them with registry.
func NewSession(registry prometheus.Registerer) *Session {
	factory := promauto.With(registry)

	return &Session{
		Actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_session_actions_total",
				Help: "Session store actions by outcome (ok or an error code)",
			},
			[]string{"action", "outcome"},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_session_action_duration_seconds",
				Help:    "Duration of session store actions",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
			},
			[]string{"action"},
		),
		ObserverEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_session_observer_events_total",
				Help: "Identity changes applied by the session observer",
			},
			[]string{"state"},
		),
		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_gate_decisions_total",
				Help: "Authorization gate decisions",
			},
			[]string{"decision"},
		),
	}
}

// NewRegistry creates a registry with the session collectors and the Go/process collectors.
func NewRegistry() (*prometheus.Registry, *Session) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewSession(reg)
}

// HandlerFor returns an HTTP handler for a specific registry.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (s *Session) ObserveAction(action, outcome string, elapsed time.Duration) {
	s.Actions.WithLabelValues(action, outcome).Inc()
	s.ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (s *Session) ObserveObserverEvent(state string) {
	s.ObserverEvents.WithLabelValues(state).Inc()
}

func (s *Session) ObserveGateDecision(decision string) {
	s.GateDecisions.WithLabelValues(decision).Inc()
}
