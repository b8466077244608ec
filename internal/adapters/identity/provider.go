package identity

// Package identity implements ports.IdentityProvider on top of a Directory,
// a CredentialStore and an optional cross-process ChangeFeed.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/ports"
)

const (
	// DefaultClientID keys the persisted credential when none is configured.
	DefaultClientID = "storefront-admin"
	// DefaultTTL is the credential lifetime when none is configured.
	DefaultTTL = 8 * time.Hour

	restoreTimeout   = 10 * time.Second
	feedRetryInitial = time.Second
	feedRetryMax     = 30 * time.Second
)

// ErrSignerRequired indicates a provider cannot be constructed without a token signer.
var ErrSignerRequired = errors.New("identity provider: token signer is required")

// ProviderOptions groups dependencies for NewProvider.
type ProviderOptions struct {
	Directory   ports.Directory
	Credentials ports.CredentialStore
	Feed        ports.ChangeFeed // optional
	Signer      *TokenSigner
	ClientID    string
	TTL         time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Provider implements ports.IdentityProvider.
type Provider struct {
	dir        ports.Directory
	creds      ports.CredentialStore
	feed       ports.ChangeFeed
	signer     *TokenSigner
	clientID   string
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
	instanceID string

	mu         sync.Mutex
	current    *domainauth.Identity
	resolved   bool
	generation uint64
	expiry     *time.Timer
	subs       map[uint64]*subscriber
	nextSub    uint64

	restoreOnce sync.Once
	lookups     singleflight.Group
}

// NewProvider constructs a Provider. Directory, Credentials and Signer are required.
func NewProvider(opts ProviderOptions) (*Provider, error) {
	if opts.Directory == nil {
		return nil, errors.New("identity provider: directory is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("identity provider: credential store is required")
	}
	if opts.Signer == nil {
		return nil, ErrSignerRequired
	}
	p := &Provider{
		dir:        opts.Directory,
		creds:      opts.Credentials,
		feed:       opts.Feed,
		signer:     opts.Signer,
		clientID:   opts.ClientID,
		ttl:        opts.TTL,
		now:        opts.Clock,
		logger:     opts.Logger,
		instanceID: uuid.NewString(),
		subs:       make(map[uint64]*subscriber),
	}
	if p.clientID == "" {
		p.clientID = DefaultClientID
	}
	if p.ttl <= 0 {
		p.ttl = DefaultTTL
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// SignIn authenticates against the directory, persists a signed credential and makes the identity current.
func (p *Provider) SignIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	id, err := p.dir.Authenticate(ctx, identifier, secret)
	if err != nil {
		return domainauth.Identity{}, err
	}
	// A caller that gave up must not end up signed in.
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(err)
	}

	cred, err := p.signer.Issue(p.clientID, id, p.ttl)
	if err != nil {
		return domainauth.Identity{}, apperrors.Unknown(err)
	}
	if err := p.creds.Save(ctx, cred); err != nil {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(fmt.Errorf("persist credential: %w", err))
	}

	p.mu.Lock()
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		p.discardCredential(cred.ClientID)
		return domainauth.Identity{}, apperrors.ProviderUnavailable(err)
	}
	p.applyLocked(&id, cred.ExpiresAt)
	p.mu.Unlock()

	p.publish(ctx, domainauth.ChangeSignedIn, id.ID)
	return id, nil
}

// discardCredential removes a credential saved by a sign-in that was abandoned.
func (p *Provider) discardCredential(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := p.creds.Delete(ctx, clientID); err != nil {
		p.logger.Warn("delete abandoned credential failed", "client_id", clientID, "error", err)
	}
}

// SignOut clears the current identity first, then removes the persisted credential.
// The returned error only reports the remote cleanup; the local state is already anonymous.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.applyLocked(nil, time.Time{})
	p.mu.Unlock()

	err := p.creds.Delete(ctx, p.clientID)
	p.publish(ctx, domainauth.ChangeSignedOut, "")
	if err != nil {
		return apperrors.ProviderUnavailable(fmt.Errorf("delete credential: %w", err))
	}
	return nil
}

// CreatePrivilegedAccount creates an admin account. It does not change the current identity.
func (p *Provider) CreatePrivilegedAccount(ctx context.Context, identifier, secret string) error {
	_, err := p.dir.CreateAccount(ctx, domainauth.NewAccount{
		Identifier: identifier,
		Secret:     secret,
		Privileged: true,
	})
	return err
}

// IsAdmin looks up privilege for identity. Concurrent lookups for the same identity share one call.
func (p *Provider) IsAdmin(ctx context.Context, identity domainauth.Identity) bool {
	if identity.ID == "" {
		return false
	}
	v, err, _ := p.lookups.Do(identity.ID, func() (any, error) {
		return p.dir.IsPrivileged(ctx, identity)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "privilege lookup failed", "user_id", identity.ID, "error", err)
		return false
	}
	admin, _ := v.(bool)
	return admin
}

// AdminExists reports whether the directory holds any admin account.
func (p *Provider) AdminExists(ctx context.Context) (bool, error) {
	return p.dir.AdminExists(ctx)
}

// SubscribeToChanges registers fn. fn is called once the initial identity is resolved
// (immediately if it already is) and after every change.
func (p *Provider) SubscribeToChanges(fn ports.ChangeFunc) func() {
	sub := newSubscriber(fn)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = sub
	if p.resolved {
		sub.offer(p.current)
	}
	p.mu.Unlock()

	p.ensureRestored()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.subs[id]; ok {
			delete(p.subs, id)
			s.stop()
		}
	}
}

// ClientID returns the key the provider persists its credential under.
func (p *Provider) ClientID() string { return p.clientID }

// SubscriberCount returns the number of active change subscribers.
func (p *Provider) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Run restores the persisted credential and follows the change feed until ctx is done.
// Feed failures are logged and retried with backoff.
func (p *Provider) Run(ctx context.Context) error {
	p.ensureRestored()
	if p.feed == nil {
		<-ctx.Done()
		return nil
	}

	backoff := feedRetryInitial
	for {
		err := p.feed.Listen(ctx, p.ApplyChange)
		if ctx.Err() != nil {
			return nil
		}
		p.logger.WarnContext(ctx, "session change feed stopped; retrying", "error", err, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, feedRetryMax)
	}
}

// Close stops every subscriber and the expiry timer.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.subs {
		s.stop()
		delete(p.subs, id)
	}
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func (p *Provider) ensureRestored() {
	p.restoreOnce.Do(func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
			defer cancel()
			id, expiresAt := p.loadPersisted(ctx)

			p.mu.Lock()
			defer p.mu.Unlock()
			if p.resolved {
				return
			}
			p.applyLocked(id, expiresAt)
		}()
	})
}

// loadPersisted returns the identity carried by the stored credential, or nil when there is
// no usable credential. Invalid or expired credentials are removed.
func (p *Provider) loadPersisted(ctx context.Context) (*domainauth.Identity, time.Time) {
	cred, err := p.creds.Get(ctx, p.clientID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			p.logger.WarnContext(ctx, "load persisted credential failed", "client_id", p.clientID, "error", err)
		}
		return nil, time.Time{}
	}

	id, err := p.signer.Verify(p.clientID, cred.Token)
	if err == nil && cred.Expired(p.now()) {
		err = errors.New("credential expired")
	}
	if err != nil {
		p.logger.InfoContext(ctx, "discarding persisted credential", "client_id", p.clientID, "reason", err)
		if delErr := p.creds.Delete(ctx, p.clientID); delErr != nil {
			p.logger.WarnContext(ctx, "delete stale credential failed", "error", delErr)
		}
		return nil, time.Time{}
	}
	return &id, cred.ExpiresAt
}

// applyLocked makes id current, reschedules expiry and notifies subscribers when the
// visible identity changed. Callers hold p.mu.
func (p *Provider) applyLocked(id *domainauth.Identity, expiresAt time.Time) {
	changed := !p.resolved || !sameIdentity(p.current, id)

	if id != nil {
		cp := *id
		id = &cp
	}
	p.current = id
	p.resolved = true
	p.generation++

	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	if id != nil && !expiresAt.IsZero() {
		gen := p.generation
		p.expiry = time.AfterFunc(expiresAt.Sub(p.now()), func() { p.expire(gen) })
	}

	if !changed {
		return
	}
	for _, s := range p.subs {
		s.offer(p.current)
	}
}

func (p *Provider) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.current == nil {
		p.mu.Unlock()
		return
	}
	userID := p.current.ID
	p.applyLocked(nil, time.Time{})
	p.mu.Unlock()

	p.logger.Info("session credential expired", "client_id", p.clientID, "user_id", userID)
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := p.creds.Delete(ctx, p.clientID); err != nil {
		p.logger.Warn("delete expired credential failed", "error", err)
	}
}

// ApplyChange applies a change published by another provider instance sharing the client key.
// Events for other clients and this instance's own events are ignored.
func (p *Provider) ApplyChange(ev domainauth.ChangeEvent) {
	if ev.ClientID != p.clientID || ev.Origin == p.instanceID {
		return
	}
	switch ev.Kind {
	case domainauth.ChangeSignedOut:
		p.mu.Lock()
		p.applyLocked(nil, time.Time{})
		p.mu.Unlock()
	case domainauth.ChangeSignedIn:
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		id, expiresAt := p.loadPersisted(ctx)
		p.mu.Lock()
		p.applyLocked(id, expiresAt)
		p.mu.Unlock()
	default:
		p.logger.Debug("ignoring unknown session change", "kind", ev.Kind)
	}
}

func (p *Provider) publish(ctx context.Context, kind domainauth.ChangeKind, userID string) {
	if p.feed == nil {
		return
	}
	ev := domainauth.ChangeEvent{
		ClientID: p.clientID,
		Origin:   p.instanceID,
		Kind:     kind,
		UserID:   userID,
		At:       p.now(),
	}
	if err := p.feed.Publish(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "publish session change failed", "kind", kind, "error", err)
	}
}

func sameIdentity(a, b *domainauth.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var _ ports.IdentityProvider = (*Provider)(nil)
