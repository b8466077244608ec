package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/storefront-admin/internal/adapters/identity"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	httpx "github.com/target/storefront-admin/internal/http"
	"github.com/target/storefront-admin/internal/ports"
	"github.com/target/storefront-admin/internal/service"
)

const (
	// visitorClientSep separates the configured client id from the visitor id.
	visitorClientSep = ":visitor:"
	// freshVisitorWait bounds how long a new visitor's first request waits for its restore.
	freshVisitorWait = 2 * time.Second
	// minSweepInterval keeps a tiny idle TTL from spinning the sweeper.
	minSweepInterval = time.Second
)

var (
	// ErrVisitorLimit is returned when MaxVisitors browser sessions are already held.
	ErrVisitorLimit = errors.New("visitor session limit reached")
	// ErrVisitorsClosed is returned after the registry has been closed.
	ErrVisitorsClosed = errors.New("visitor sessions closed")
)

// VisitorSessionsConfig groups dependencies for NewVisitorSessions.
type VisitorSessionsConfig struct {
	// NewProvider builds an identity provider persisting under clientID. Required.
	NewProvider func(clientID string) (*identity.Provider, error)
	// Feed carries changes between processes serving the same visitors. Optional.
	Feed        ports.ChangeFeed
	ClientID    string // base client id; each visitor gets ClientID + ":visitor:" + id
	Store       service.SessionStoreConfig
	Telemetry   service.SessionTelemetry
	IdleTTL     time.Duration
	MaxVisitors int
	Clock       func() time.Time
	Logger      *slog.Logger
}

// VisitorSessions holds one session store per browser visitor. A visitor's store is
// created on first use and released after IdleTTL without requests.
type VisitorSessions struct {
	cfg    VisitorSessionsConfig
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitorSession
	closed   bool
}

type visitorSession struct {
	provider *identity.Provider
	store    *service.SessionStore
	lastSeen time.Time
}

// NewVisitorSessions returns an empty registry.
func NewVisitorSessions(cfg VisitorSessionsConfig) *VisitorSessions {
	if cfg.NewProvider == nil {
		panic("VisitorSessions requires NewProvider")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = identity.DefaultClientID
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VisitorSessions{
		cfg:      cfg,
		prefix:   cfg.ClientID + visitorClientSep,
		logger:   logger,
		visitors: make(map[string]*visitorSession),
	}
}

// ForVisitor returns the visitor's store, creating it on first use. A new store is given
// a short wait to restore any persisted credential before the request proceeds.
//
//nolint:ireturn // satisfies httpx.SessionLocator.
func (v *VisitorSessions) ForVisitor(ctx context.Context, visitorID string) (httpx.SessionService, error) {
	store, fresh, err := v.lookup(visitorID)
	if err != nil {
		return nil, err
	}
	if fresh {
		waitCtx, cancel := context.WithTimeout(ctx, freshVisitorWait)
		defer cancel()
		if _, err := store.WaitResolved(waitCtx); errors.Is(err, service.ErrStoreDisposed) {
			return nil, ErrVisitorsClosed
		}
	}
	return store, nil
}

func (v *VisitorSessions) lookup(visitorID string) (*service.SessionStore, bool, error) {
	if visitorID == "" {
		return nil, false, errors.New("visitor id is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, false, ErrVisitorsClosed
	}
	now := v.cfg.Clock()
	if vs, ok := v.visitors[visitorID]; ok {
		vs.lastSeen = now
		return vs.store, false, nil
	}
	if v.cfg.MaxVisitors > 0 && len(v.visitors) >= v.cfg.MaxVisitors {
		return nil, false, ErrVisitorLimit
	}

	provider, err := v.cfg.NewProvider(v.prefix + visitorID)
	if err != nil {
		return nil, false, err
	}
	store := service.NewSessionStore(service.SessionStoreOptions{
		Provider:  provider,
		Config:    v.cfg.Store,
		Telemetry: v.cfg.Telemetry,
	})
	store.Init()
	v.visitors[visitorID] = &visitorSession{provider: provider, store: store, lastSeen: now}
	return store, true, nil
}

// Len returns the number of visitor sessions held in process.
func (v *VisitorSessions) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.visitors)
}

// Sweep releases visitors idle for longer than IdleTTL and returns how many were released.
// Persisted credentials are kept.
func (v *VisitorSessions) Sweep() int {
	if v.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := v.cfg.Clock().Add(-v.cfg.IdleTTL)

	v.mu.Lock()
	var idle []*visitorSession
	for id, vs := range v.visitors {
		if vs.lastSeen.Before(cutoff) {
			idle = append(idle, vs)
			delete(v.visitors, id)
		}
	}
	v.mu.Unlock()

	for _, vs := range idle {
		vs.release()
	}
	return len(idle)
}

// Run sweeps idle visitors and applies feed changes to the visitors they name until ctx is done.
func (v *VisitorSessions) Run(ctx context.Context) error {
	if v.cfg.Feed != nil {
		go v.follow(ctx)
	}
	interval := max(v.cfg.IdleTTL/2, minSweepInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := v.Sweep(); n > 0 {
				v.logger.DebugContext(ctx, "released idle visitor sessions", "count", n)
			}
		}
	}
}

func (v *VisitorSessions) follow(ctx context.Context) {
	backoff := time.Second
	for {
		err := v.cfg.Feed.Listen(ctx, v.dispatch)
		if ctx.Err() != nil {
			return
		}
		v.logger.WarnContext(ctx, "visitor change feed stopped; retrying", "error", err, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// dispatch hands ev to the visitor it names, if that visitor is held in this process.
func (v *VisitorSessions) dispatch(ev domainauth.ChangeEvent) {
	visitorID, ok := strings.CutPrefix(ev.ClientID, v.prefix)
	if !ok {
		return
	}
	v.mu.Lock()
	vs := v.visitors[visitorID]
	v.mu.Unlock()
	if vs != nil {
		vs.provider.ApplyChange(ev)
	}
}

// Close releases every visitor. Later lookups fail with ErrVisitorsClosed.
func (v *VisitorSessions) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	all := make([]*visitorSession, 0, len(v.visitors))
	for id, vs := range v.visitors {
		all = append(all, vs)
		delete(v.visitors, id)
	}
	v.mu.Unlock()

	for _, vs := range all {
		vs.release()
	}
}

func (vs *visitorSession) release() {
	vs.store.Dispose()
	vs.provider.Close()
}

var _ httpx.SessionLocator = (*VisitorSessions)(nil)
