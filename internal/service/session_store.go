package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/ports"
)

const (
	opSignIn        = "sign in"
	opSignOut       = "sign out"
	opCreateAccount = "create account"
)

// ErrStoreDisposed is returned by WaitResolved once the store has been disposed.
var ErrStoreDisposed = errors.New("session store disposed")

// SessionStoreConfig tunes SessionStore behavior.
type SessionStoreConfig struct {
	// OperationTimeout bounds every provider call made by an action. Zero disables the bound.
	OperationTimeout time.Duration
}

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Provider  ports.IdentityProvider // Required
	Config    SessionStoreConfig     // Optional
	Telemetry SessionTelemetry       // Optional
}

// SessionStore owns the session snapshot of one client: the operator console or a single browser.
// Every write replaces the whole snapshot under mu; the last write to settle wins.
type SessionStore struct {
	provider ports.IdentityProvider
	timeout  time.Duration
	logger   *slog.Logger
	metrics  SessionMetrics
	observer *SessionObserver

	mu       sync.Mutex
	snap     domainauth.Session
	version  uint64
	watchers map[chan struct{}]struct{}
	disposed bool

	initOnce    sync.Once
	disposeOnce sync.Once
}

// NewSessionStore constructs a store in the initial loading state. Call Init to start observing.
func NewSessionStore(opts SessionStoreOptions) *SessionStore {
	if opts.Provider == nil {
		panic("SessionStore requires Provider")
	}
	s := &SessionStore{
		provider: opts.Provider,
		timeout:  opts.Config.OperationTimeout,
		logger:   opts.Telemetry.Logger,
		metrics:  opts.Telemetry.Metrics,
		snap:     domainauth.InitialSession(),
		watchers: make(map[chan struct{}]struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopSessionMetrics{}
	}
	s.observer = NewSessionObserver(SessionObserverOptions{
		Provider:  s.provider,
		Publish:   s.publish,
		Telemetry: SessionTelemetry{Logger: s.logger, Metrics: s.metrics},
	})
	return s
}

// Init attaches the session observer. Only the first call has any effect.
func (s *SessionStore) Init() {
	s.initOnce.Do(func() {
		s.mu.Lock()
		disposed := s.disposed
		s.mu.Unlock()
		if disposed {
			return
		}
		s.observer.Attach()
	})
}

// Dispose detaches the observer and closes every watcher channel. Safe to call more than once.
func (s *SessionStore) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		for ch := range s.watchers {
			delete(s.watchers, ch)
			drainAndClose(ch)
		}
		s.mu.Unlock()

		s.observer.Close()
	})
}

// Snapshot returns a copy of the current session.
func (s *SessionStore) Snapshot() domainauth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Normalize()
}

// Version returns the number of snapshot writes applied so far.
func (s *SessionStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe returns a channel signalled after each snapshot write. Signals are coalesced;
// read Snapshot after receiving. The channel is closed by unsubscribe or Dispose.
func (s *SessionStore) Subscribe() (func(), <-chan struct{}) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		close(ch)
		return func() {}, ch
	}
	s.watchers[ch] = struct{}{}

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; !ok {
			return
		}
		delete(s.watchers, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// WaitResolved blocks until the snapshot is not loading, ctx is done, or the store is disposed.
func (s *SessionStore) WaitResolved(ctx context.Context) (domainauth.Session, error) {
	unsub, ch := s.Subscribe()
	defer unsub()

	for {
		snap := s.Snapshot()
		if !snap.Loading {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return s.Snapshot(), ErrStoreDisposed
			}
		}
	}
}

// SignIn authenticates and publishes the user and privilege together.
// On failure the current user is kept, Error carries the display message,
// and the classified error is returned.
func (s *SessionStore) SignIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	start := time.Now()
	s.beginAttempt()

	id, err := s.signIn(ctx, identifier, secret)
	s.metrics.ObserveAction("sign_in", outcomeOf(err), time.Since(start))
	return id, err
}

func (s *SessionStore) signIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := await(callCtx, func(ctx context.Context) (domainauth.Identity, error) {
		return s.provider.SignIn(ctx, identifier, secret)
	})
	if err != nil {
		return domainauth.Identity{}, s.fail(ctx, opSignIn, err)
	}

	admin := s.provider.IsAdmin(callCtx, id)
	s.publish(domainauth.AuthenticatedSession(id, admin))
	s.logger.InfoContext(ctx, "signed in", "user_id", id.ID, "admin", admin)
	return id, nil
}

// SignOut always ends anonymous. A provider failure is logged, never returned.
func (s *SessionStore) SignOut(ctx context.Context) {
	start := time.Now()
	s.beginAttempt()

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := await(callCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.provider.SignOut(ctx)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "remote sign-out failed; local session cleared", "error", err)
	}

	s.publish(domainauth.AnonymousSession())
	s.metrics.ObserveAction("sign_out", outcomeOf(err), time.Since(start))
}

// CreatePrivilegedAccount creates an admin account, then signs in as it with the same credentials.
// A creation failure is recorded and returned without attempting sign-in; the error's Op tells
// the two steps apart.
func (s *SessionStore) CreatePrivilegedAccount(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	start := time.Now()
	s.beginAttempt()

	callCtx, cancel := s.withTimeout(ctx)
	_, err := await(callCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.provider.CreatePrivilegedAccount(ctx, identifier, secret)
	})
	cancel()
	if err != nil {
		appErr := s.fail(ctx, opCreateAccount, err)
		s.metrics.ObserveAction("create_account", outcomeOf(appErr), time.Since(start))
		return domainauth.Identity{}, appErr
	}
	s.metrics.ObserveAction("create_account", outcomeOf(nil), time.Since(start))
	s.logger.InfoContext(ctx, "privileged account created")

	return s.SignIn(ctx, identifier, secret)
}

// beginAttempt marks an action in flight and clears the previous error, keeping the user.
func (s *SessionStore) beginAttempt() {
	s.update(func(cur domainauth.Session) domainauth.Session {
		cur.Loading = true
		cur.Error = ""
		return cur
	})
}

// fail records err's display message and returns the classified error.
func (s *SessionStore) fail(ctx context.Context, op string, err error) *apperrors.AppError {
	appErr := apperrors.Classify(op, err)
	s.update(func(cur domainauth.Session) domainauth.Session {
		cur.Loading = false
		cur.Error = appErr.Message
		return cur
	})
	s.logger.WarnContext(ctx, "session action failed", "op", op, "code", appErr.Code, "error", err)
	return appErr
}

func (s *SessionStore) publish(next domainauth.Session) {
	s.update(func(domainauth.Session) domainauth.Session { return next })
}

// update replaces the snapshot with fn(current) in one step and signals watchers.
func (s *SessionStore) update(fn func(domainauth.Session) domainauth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.snap = fn(s.snap).Normalize()
	s.version++
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *SessionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// await runs fn and returns when it finishes or ctx is done, whichever comes first.
// A result that is ready when ctx ends is preferred over the context error.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.v, r.err
		default:
			var zero T
			return zero, ctx.Err()
		}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return string(apperrors.ErrCodeUnknown)
}

// drainAndClose removes any buffered notification before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
