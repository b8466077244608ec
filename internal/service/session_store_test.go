package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	mocks "github.com/target/storefront-admin/internal/mocks/auth"
)

type recordedAction struct {
	action  string
	outcome string
}

// recordingMetrics captures SessionMetrics calls for assertions.
type recordingMetrics struct {
	mu      sync.Mutex
	actions []recordedAction
	events  []string
}

func (m *recordingMetrics) ObserveAction(action, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, recordedAction{action: action, outcome: outcome})
}

func (m *recordingMetrics) ObserveObserverEvent(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, state)
}

func (m *recordingMetrics) Actions() []recordedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedAction(nil), m.actions...)
}

func newTestStore(t *testing.T, provider *mocks.FakeIdentityProvider) *SessionStore {
	t.Helper()
	s := NewSessionStore(SessionStoreOptions{
		Provider: provider,
		Config:   SessionStoreConfig{OperationTimeout: time.Second},
	})
	t.Cleanup(s.Dispose)
	return s
}

func TestNewSessionStore_PanicsWithoutProvider(t *testing.T) {
	assert.Panics(t, func() { NewSessionStore(SessionStoreOptions{}) })
}

func TestSessionStore_InitialSnapshotIsLoading(t *testing.T) {
	s := newTestStore(t, mocks.NewFakeIdentityProvider())

	snap := s.Snapshot()
	assert.True(t, snap.Loading)
	assert.Nil(t, snap.CurrentUser)
	assert.False(t, snap.IsAdmin())
	assert.Equal(t, domainauth.DecisionPending, domainauth.Decide(snap))
}

func TestSessionStore_InitResolvesAnonymous(t *testing.T) {
	s := newTestStore(t, mocks.NewFakeIdentityProvider())
	s.Init()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := s.WaitResolved(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.CurrentUser)
	assert.Equal(t, domainauth.CapabilityAnonymous, snap.Capability)
	assert.Equal(t, domainauth.DecisionDenied, domainauth.Decide(snap))
}

func TestSessionStore_InitTwiceSubscribesOnce(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	s := newTestStore(t, provider)

	s.Init()
	s.Init()

	assert.Equal(t, 1, provider.SubscriberCount())
	assert.Equal(t, 1, provider.Calls("SubscribeToChanges"))
}

func TestSessionStore_DisposeReleasesSubscription(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	s := newTestStore(t, provider)
	s.Init()
	require.Equal(t, 1, provider.SubscriberCount())

	s.Dispose()
	s.Dispose()
	assert.Equal(t, 0, provider.SubscriberCount())

	// Init after Dispose must not subscribe again.
	s.Init()
	assert.Equal(t, 0, provider.SubscriberCount())
}

func TestSessionStore_DisposeBeforeInit(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	s := newTestStore(t, provider)

	s.Dispose()
	s.Init()
	assert.Equal(t, 0, provider.Calls("SubscribeToChanges"))
}

func TestSessionStore_ObserverAppliesProviderChanges(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	owner := provider.AddAccount("owner@x.com", "secret1", true)
	clerk := provider.AddAccount("clerk@x.com", "secret2", false)
	s := newTestStore(t, provider)
	s.Init()

	provider.Emit(&owner)
	snap := s.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, owner, *snap.CurrentUser)
	assert.True(t, snap.IsAdmin())
	assert.False(t, snap.Loading)

	provider.Emit(&clerk)
	snap = s.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, clerk, *snap.CurrentUser)
	assert.False(t, snap.IsAdmin())

	provider.Emit(nil)
	snap = s.Snapshot()
	assert.Nil(t, snap.CurrentUser)
	assert.False(t, snap.IsAdmin())
}

func TestSessionStore_SnapshotIsACopy(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	owner := provider.AddAccount("owner@x.com", "secret1", true)
	s := newTestStore(t, provider)
	s.Init()
	provider.Emit(&owner)

	snap := s.Snapshot()
	snap.CurrentUser.Email = "tampered@x.com"

	assert.Equal(t, "owner@x.com", s.Snapshot().CurrentUser.Email)
}

func TestSessionStore_SignIn(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		secret    string
		wantAdmin bool
	}{
		{name: "admin account", email: "owner@x.com", secret: "secret1", wantAdmin: true},
		{name: "regular account", email: "clerk@x.com", secret: "secret2", wantAdmin: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mocks.NewFakeIdentityProvider()
			provider.AddAccount("owner@x.com", "secret1", true)
			provider.AddAccount("clerk@x.com", "secret2", false)
			s := newTestStore(t, provider)
			s.Init()

			id, err := s.SignIn(context.Background(), tt.email, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.email, id.Email)

			snap := s.Snapshot()
			require.NotNil(t, snap.CurrentUser)
			assert.Equal(t, id, *snap.CurrentUser)
			assert.Equal(t, tt.wantAdmin, snap.IsAdmin())
			assert.False(t, snap.Loading)
			assert.Empty(t, snap.Error)
			assert.Equal(t, domainauth.DecisionAllowed, domainauth.Decide(snap))
		})
	}
}

func TestSessionStore_SignInFailureKeepsUser(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount("owner@x.com", "secret1", true)
	s := newTestStore(t, provider)
	s.Init()
	ctx := context.Background()

	signedIn, err := s.SignIn(ctx, "owner@x.com", "secret1")
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "owner@x.com", "wrong-secret")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidCredentials(err))
	assert.Equal(t, opSignIn, apperrors.GetOp(err))

	snap := s.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, signedIn, *snap.CurrentUser)
	assert.True(t, snap.IsAdmin())
	assert.False(t, snap.Loading)
	assert.Equal(t, apperrors.DisplayMessage(apperrors.ErrCodeInvalidCredentials), snap.Error)
}

func TestSessionStore_NextAttemptClearsError(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount("owner@x.com", "secret1", true)
	s := newTestStore(t, provider)
	s.Init()
	ctx := context.Background()

	_, err := s.SignIn(ctx, "owner@x.com", "nope")
	require.Error(t, err)
	require.NotEmpty(t, s.Snapshot().Error)

	_, err = s.SignIn(ctx, "owner@x.com", "secret1")
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().Error)
}

func TestSessionStore_SignOutAlwaysEndsAnonymous(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount("owner@x.com", "secret1", true)
	provider.SignOutFunc = func(context.Context) error { return errors.New("network unreachable") }
	s := newTestStore(t, provider)
	s.Init()
	ctx := context.Background()

	_, err := s.SignIn(ctx, "owner@x.com", "secret1")
	require.NoError(t, err)

	s.SignOut(ctx)
	s.SignOut(ctx)

	snap := s.Snapshot()
	assert.Nil(t, snap.CurrentUser)
	assert.False(t, snap.IsAdmin())
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 2, provider.Calls("SignOut"))
}

func TestSessionStore_CreatePrivilegedAccountSignsIn(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	s := newTestStore(t, provider)
	s.Init()

	id, err := s.CreatePrivilegedAccount(context.Background(), "new@x.com", "abcdef")
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", id.Email)

	snap := s.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "new@x.com", snap.CurrentUser.Email)
	assert.True(t, snap.IsAdmin())
	assert.False(t, snap.Loading)
}

func TestSessionStore_CreatePrivilegedAccountFailures(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		secret string
		check  func(error) bool
	}{
		{name: "duplicate", email: "owner@x.com", secret: "abcdef", check: apperrors.IsAlreadyExists},
		{name: "weak secret", email: "new@x.com", secret: "abc", check: apperrors.IsWeakSecret},
		{name: "malformed identifier", email: "not-an-email", secret: "abcdef", check: apperrors.IsInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mocks.NewFakeIdentityProvider()
			provider.AddAccount("owner@x.com", "secret1", true)
			s := newTestStore(t, provider)
			s.Init()

			_, err := s.CreatePrivilegedAccount(context.Background(), tt.email, tt.secret)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected code %s", apperrors.GetCode(err))
			assert.Equal(t, opCreateAccount, apperrors.GetOp(err))
			assert.Equal(t, 0, provider.Calls("SignIn"))

			snap := s.Snapshot()
			assert.Nil(t, snap.CurrentUser)
			assert.False(t, snap.Loading)
			assert.NotEmpty(t, snap.Error)
		})
	}
}

func TestSessionStore_TimeoutSettlesAsUnavailable(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	provider := mocks.NewFakeIdentityProvider()
	provider.SignInFunc = func(context.Context, string, string) (domainauth.Identity, error) {
		<-release
		return domainauth.Identity{}, nil
	}
	s := NewSessionStore(SessionStoreOptions{
		Provider: provider,
		Config:   SessionStoreConfig{OperationTimeout: 50 * time.Millisecond},
	})
	t.Cleanup(s.Dispose)
	s.Init()

	_, err := s.SignIn(context.Background(), "owner@x.com", "secret1")
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderUnavailable(err))

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, apperrors.DisplayMessage(apperrors.ErrCodeProviderUnavailable), snap.Error)
}

func TestSessionStore_GatePendingWhileActionInFlight(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount("owner@x.com", "secret1", true)
	s := newTestStore(t, provider)
	s.Init()
	ctx := context.Background()

	_, err := s.SignIn(ctx, "owner@x.com", "secret1")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	provider.SignInFunc = func(context.Context, string, string) (domainauth.Identity, error) {
		close(started)
		<-release
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.SignIn(ctx, "owner@x.com", "again")
	}()

	<-started
	snap := s.Snapshot()
	assert.True(t, snap.Loading)
	assert.NotNil(t, snap.CurrentUser)
	assert.Equal(t, domainauth.DecisionPending, domainauth.Decide(snap))

	close(release)
	<-done
	assert.Equal(t, domainauth.DecisionAllowed, domainauth.Decide(s.Snapshot()))
}

func TestSessionStore_AdminImpliesUserAcrossTransitions(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	owner := provider.AddAccount("owner@x.com", "secret1", true)
	s := newTestStore(t, provider)

	var (
		mu   sync.Mutex
		seen []domainauth.Session
	)
	unsub, ch := s.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
			mu.Lock()
			seen = append(seen, s.Snapshot())
			mu.Unlock()
		}
	}()

	ctx := context.Background()
	s.Init()
	_, _ = s.SignIn(ctx, "owner@x.com", "secret1")
	provider.Emit(nil)
	provider.Emit(&owner)
	s.SignOut(ctx)
	_, _ = s.CreatePrivilegedAccount(ctx, "new@x.com", "abcdef")
	s.SignOut(ctx)

	unsub()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i, snap := range seen {
		if snap.IsAdmin() {
			assert.NotNil(t, snap.CurrentUser, "snapshot %d is admin without a user", i)
		}
		if snap.CurrentUser == nil {
			assert.Equal(t, domainauth.CapabilityAnonymous, snap.Capability, "snapshot %d", i)
		}
	}
}

func TestSessionStore_SubscribeSignalsAndClosesOnDispose(t *testing.T) {
	s := NewSessionStore(SessionStoreOptions{Provider: mocks.NewFakeIdentityProvider()})
	_, ch := s.Subscribe()

	before := s.Version()
	s.Init()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after Init")
	}
	assert.Greater(t, s.Version(), before)

	s.Dispose()
	_, ok := <-ch
	assert.False(t, ok)

	_, late := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestSessionStore_WaitResolved(t *testing.T) {
	t.Run("context deadline while loading", func(t *testing.T) {
		provider := mocks.NewFakeIdentityProvider()
		provider.DeferInitial = true
		s := newTestStore(t, provider)
		s.Init()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		snap, err := s.WaitResolved(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, snap.Loading)
	})

	t.Run("resolves on late emit", func(t *testing.T) {
		provider := mocks.NewFakeIdentityProvider()
		provider.DeferInitial = true
		owner := provider.AddAccount("owner@x.com", "secret1", true)
		s := newTestStore(t, provider)
		s.Init()

		go func() {
			time.Sleep(10 * time.Millisecond)
			provider.Emit(&owner)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		snap, err := s.WaitResolved(ctx)
		require.NoError(t, err)
		assert.True(t, snap.IsAdmin())
	})

	t.Run("disposed", func(t *testing.T) {
		provider := mocks.NewFakeIdentityProvider()
		provider.DeferInitial = true
		s := newTestStore(t, provider)
		s.Init()

		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Dispose()
		}()

		_, err := s.WaitResolved(context.Background())
		assert.ErrorIs(t, err, ErrStoreDisposed)
	})
}

func TestSessionStore_RecordsActionMetrics(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount("owner@x.com", "secret1", true)
	metrics := &recordingMetrics{}
	s := NewSessionStore(SessionStoreOptions{
		Provider:  provider,
		Telemetry: SessionTelemetry{Metrics: metrics},
	})
	t.Cleanup(s.Dispose)
	ctx := context.Background()

	_, _ = s.SignIn(ctx, "owner@x.com", "bad")
	_, _ = s.SignIn(ctx, "owner@x.com", "secret1")
	s.SignOut(ctx)

	assert.Equal(t, []recordedAction{
		{action: "sign_in", outcome: string(apperrors.ErrCodeInvalidCredentials)},
		{action: "sign_in", outcome: "ok"},
		{action: "sign_out", outcome: "ok"},
	}, metrics.Actions())
}

func TestAwait_PrefersReadyResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := await(ctx, func(context.Context) (int, error) { return 7, nil })
	// Either outcome is legal for an already-cancelled context; a ready result must never be lost.
	if err == nil {
		assert.Equal(t, 7, v)
	} else {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
