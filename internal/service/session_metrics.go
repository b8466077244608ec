package service

import (
	"log/slog"
	"time"
)

// SessionMetrics records session store activity. Implementations must be safe for concurrent use.
type SessionMetrics interface {
	// ObserveAction records a completed store action; outcome is "ok" or an error code.
	ObserveAction(action, outcome string, elapsed time.Duration)
	// ObserveObserverEvent records an identity change applied by the observer.
	ObserveObserverEvent(state string)
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) ObserveAction(string, string, time.Duration) {}
func (noopSessionMetrics) ObserveObserverEvent(string)                 {}

// SessionTelemetry groups optional logging and metrics dependencies.
type SessionTelemetry struct {
	Logger  *slog.Logger
	Metrics SessionMetrics
}
