package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	"github.com/target/storefront-admin/internal/ports"
)

const defaultLookupTimeout = 10 * time.Second

// SessionObserverOptions groups dependencies for SessionObserver.
type SessionObserverOptions struct {
	Provider  ports.IdentityProvider   // Required
	Publish   func(domainauth.Session) // Required: receives every resolved snapshot
	Telemetry SessionTelemetry         // Optional
}

// SessionObserver keeps a snapshot consumer in sync with the provider's identity changes.
// It holds at most one subscription for its lifetime.
type SessionObserver struct {
	provider      ports.IdentityProvider
	publish       func(domainauth.Session)
	logger        *slog.Logger
	metrics       SessionMetrics
	lookupTimeout time.Duration

	mu          sync.Mutex
	unsubscribe func()
	attached    bool
	closed      bool
}

// NewSessionObserver constructs an observer. It does not subscribe until Attach.
func NewSessionObserver(opts SessionObserverOptions) *SessionObserver {
	if opts.Provider == nil {
		panic("SessionObserver requires Provider")
	}
	if opts.Publish == nil {
		panic("SessionObserver requires Publish")
	}
	o := &SessionObserver{
		provider:      opts.Provider,
		publish:       opts.Publish,
		logger:        opts.Telemetry.Logger,
		metrics:       opts.Telemetry.Metrics,
		lookupTimeout: defaultLookupTimeout,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = noopSessionMetrics{}
	}
	return o
}

// Attach subscribes to provider changes. Calls after the first, or after Close, are no-ops.
func (o *SessionObserver) Attach() {
	o.mu.Lock()
	if o.attached || o.closed {
		o.mu.Unlock()
		return
	}
	o.attached = true
	o.mu.Unlock()

	unsub := o.provider.SubscribeToChanges(o.handle)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		unsub()
		return
	}
	o.unsubscribe = unsub
	o.mu.Unlock()
}

// Close releases the subscription exactly once. Callbacks arriving afterwards are dropped.
func (o *SessionObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	unsub := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (o *SessionObserver) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *SessionObserver) handle(id *domainauth.Identity) {
	if o.isClosed() {
		return
	}
	if id == nil {
		o.publish(domainauth.AnonymousSession())
		o.metrics.ObserveObserverEvent("anonymous")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.lookupTimeout)
	defer cancel()
	admin := o.provider.IsAdmin(ctx, *id)

	if o.isClosed() {
		return
	}
	o.publish(domainauth.AuthenticatedSession(*id, admin))
	o.metrics.ObserveObserverEvent("authenticated")
	o.logger.Debug("session observer applied identity", "user_id", id.ID, "admin", admin)
}
