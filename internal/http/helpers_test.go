package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/storefront-admin/internal/adapters/identity"
	mocks "github.com/target/storefront-admin/internal/mocks/auth"
	"github.com/target/storefront-admin/internal/service"
)

// newTestSessions returns a resolved, anonymous session store backed by a fake provider.
func newTestSessions(t *testing.T) (*service.SessionStore, *mocks.FakeIdentityProvider) {
	t.Helper()
	fake := mocks.NewFakeIdentityProvider()
	store := service.NewSessionStore(service.SessionStoreOptions{
		Provider: fake,
		Config:   service.SessionStoreConfig{OperationTimeout: time.Second},
	})
	store.Init()
	t.Cleanup(store.Dispose)
	return store, fake
}

// newPendingSessions returns a store whose first resolution is held until fake.Emit is called.
func newPendingSessions(t *testing.T) (*service.SessionStore, *mocks.FakeIdentityProvider) {
	t.Helper()
	fake := mocks.NewFakeIdentityProvider()
	fake.DeferInitial = true
	store := service.NewSessionStore(service.SessionStoreOptions{Provider: fake})
	store.Init()
	t.Cleanup(store.Dispose)
	return store, fake
}

func formBody(values url.Values) *strings.Reader {
	return strings.NewReader(values.Encode())
}

func newFormRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, formBody(values))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return req
}

type recordingGate struct {
	mu        sync.Mutex
	decisions []string
}

func (g *recordingGate) ObserveGateDecision(decision string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decisions = append(g.decisions, decision)
}

func (g *recordingGate) Decisions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.decisions...)
}

// testVisitors gives every visitor its own store over one shared set of accounts.
type testVisitors struct {
	t        *testing.T
	Accounts *mocks.FakeIdentityProvider

	mu        sync.Mutex
	stores    map[string]*service.SessionStore
	providers map[string]*mocks.FakeIdentityProvider
	order     []string
}

func newTestVisitors(t *testing.T) *testVisitors {
	t.Helper()
	return &testVisitors{
		t:         t,
		Accounts:  mocks.NewFakeIdentityProvider(),
		stores:    make(map[string]*service.SessionStore),
		providers: make(map[string]*mocks.FakeIdentityProvider),
	}
}

func (v *testVisitors) ForVisitor(_ context.Context, visitorID string) (SessionService, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if store, ok := v.stores[visitorID]; ok {
		return store, nil
	}
	fake := v.Accounts.Fork()
	store := service.NewSessionStore(service.SessionStoreOptions{
		Provider: fake,
		Config:   service.SessionStoreConfig{OperationTimeout: time.Second},
	})
	store.Init()
	v.t.Cleanup(store.Dispose)
	v.stores[visitorID] = store
	v.providers[visitorID] = fake
	v.order = append(v.order, visitorID)
	return store, nil
}

// Count returns how many visitors have been given a store.
func (v *testVisitors) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.stores)
}

// Provider returns the fake behind the n-th visitor to arrive.
func (v *testVisitors) Provider(n int) *mocks.FakeIdentityProvider {
	v.mu.Lock()
	defer v.mu.Unlock()
	require.Greater(v.t, len(v.order), n, "visitor %d has not arrived", n)
	return v.providers[v.order[n]]
}

func newTestCodec(t *testing.T) *identity.TokenSigner {
	t.Helper()
	signer, err := identity.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "", nil)
	require.NoError(t, err)
	return signer
}

// newTestRouter builds the full router over visitors with an optional tweak to the services.
func newTestRouter(t *testing.T, visitors *testVisitors, mutate ...func(*RouterServices)) http.Handler {
	t.Helper()
	services := RouterServices{
		Sessions: visitors,
		Visitors: newTestCodec(t),
		Admins:   visitors.Accounts,
	}
	for _, m := range mutate {
		m(&services)
	}
	return NewRouter(services)
}
