package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.PrivilegeMatcher = StaticPrivilegeMatcher{}
)

type fakeAccount struct {
	identity domainauth.Identity
	secret   string
	admin    bool
}

// accountBook holds the accounts shared by a fake and its forks.
type accountBook struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	nextID   int
}

// FakeIdentityProvider is an in-memory identity provider with synchronous change delivery.
// Set a *Func field to override the default behavior of a method.
type FakeIdentityProvider struct {
	SignInFunc                  func(ctx context.Context, identifier, secret string) (domainauth.Identity, error)
	SignOutFunc                 func(ctx context.Context) error
	CreatePrivilegedAccountFunc func(ctx context.Context, identifier, secret string) error
	IsAdminFunc                 func(ctx context.Context, identity domainauth.Identity) bool

	// DeferInitial suppresses the immediate callback on subscribe; call Emit to resolve.
	DeferInitial bool

	book *accountBook

	mu      sync.Mutex
	current *domainauth.Identity
	subs    map[int]ports.ChangeFunc
	nextSub int
	calls   map[string]int
}

// NewFakeIdentityProvider creates a provider with no accounts and nobody signed in.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return newFake(&accountBook{accounts: make(map[string]fakeAccount)})
}

func newFake(book *accountBook) *FakeIdentityProvider {
	return &FakeIdentityProvider{
		book:  book,
		subs:  make(map[int]ports.ChangeFunc),
		calls: make(map[string]int),
	}
}

// Fork returns a provider for another client over the same accounts. The fork starts signed out
// and keeps its own subscribers and call counts. DeferInitial is copied; *Func overrides are not.
func (f *FakeIdentityProvider) Fork() *FakeIdentityProvider {
	fork := newFake(f.book)
	fork.DeferInitial = f.DeferInitial
	return fork
}

// AddAccount registers an account and returns its identity.
func (f *FakeIdentityProvider) AddAccount(email, secret string, admin bool) domainauth.Identity {
	f.book.mu.Lock()
	defer f.book.mu.Unlock()
	return f.book.addLocked(email, secret, admin)
}

func (b *accountBook) addLocked(email, secret string, admin bool) domainauth.Identity {
	b.nextID++
	key := domainauth.NormalizeIdentifier(email)
	id := domainauth.Identity{ID: fmt.Sprintf("user-%d", b.nextID), Email: key}
	b.accounts[key] = fakeAccount{identity: id, secret: secret, admin: admin}
	return id
}

func (f *FakeIdentityProvider) SignIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	f.count("SignIn")
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, identifier, secret)
	}

	f.book.mu.Lock()
	acct, ok := f.book.accounts[domainauth.NormalizeIdentifier(identifier)]
	f.book.mu.Unlock()
	if !ok || acct.secret != secret {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	id := acct.identity
	f.mu.Lock()
	f.current = &id
	f.mu.Unlock()
	return id, nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context) error {
	f.count("SignOut")
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	return nil
}

func (f *FakeIdentityProvider) CreatePrivilegedAccount(ctx context.Context, identifier, secret string) error {
	f.count("CreatePrivilegedAccount")
	if f.CreatePrivilegedAccountFunc != nil {
		return f.CreatePrivilegedAccountFunc(ctx, identifier, secret)
	}

	in := domainauth.NewAccount{Identifier: identifier, Secret: secret, Privileged: true}
	if err := in.Validate(); err != nil {
		return err
	}
	f.book.mu.Lock()
	defer f.book.mu.Unlock()
	if _, exists := f.book.accounts[domainauth.NormalizeIdentifier(identifier)]; exists {
		return apperrors.AlreadyExists(nil)
	}
	f.book.addLocked(identifier, secret, true)
	return nil
}

func (f *FakeIdentityProvider) IsAdmin(ctx context.Context, identity domainauth.Identity) bool {
	f.count("IsAdmin")
	if f.IsAdminFunc != nil {
		return f.IsAdminFunc(ctx, identity)
	}
	f.book.mu.Lock()
	defer f.book.mu.Unlock()
	for _, acct := range f.book.accounts {
		if acct.identity.ID == identity.ID {
			return acct.admin
		}
	}
	return false
}

// AdminExists reports whether any admin account has been added.
func (f *FakeIdentityProvider) AdminExists(ctx context.Context) (bool, error) {
	f.count("AdminExists")
	f.book.mu.Lock()
	defer f.book.mu.Unlock()
	for _, acct := range f.book.accounts {
		if acct.admin {
			return true, nil
		}
	}
	return false, nil
}

// SubscribeToChanges registers fn and, unless DeferInitial is set, calls it with the current identity.
func (f *FakeIdentityProvider) SubscribeToChanges(fn ports.ChangeFunc) func() {
	f.count("SubscribeToChanges")
	f.mu.Lock()
	key := f.nextSub
	f.nextSub++
	f.subs[key] = fn
	cur := copyIdentity(f.current)
	deferInitial := f.DeferInitial
	f.mu.Unlock()

	if !deferInitial {
		fn(cur)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, key)
			f.mu.Unlock()
		})
	}
}

// Emit makes id current and delivers it to every subscriber synchronously.
func (f *FakeIdentityProvider) Emit(id *domainauth.Identity) {
	f.mu.Lock()
	f.current = copyIdentity(id)
	subs := make([]ports.ChangeFunc, 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(copyIdentity(id))
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *FakeIdentityProvider) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Calls returns how many times method was invoked.
func (f *FakeIdentityProvider) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeIdentityProvider) count(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func copyIdentity(id *domainauth.Identity) *domainauth.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// StaticPrivilegeMatcher grants admin when the "groups" claim contains AdminGroup.
type StaticPrivilegeMatcher struct {
	AdminGroup string
}

func (m StaticPrivilegeMatcher) IsAdmin(claims map[string]any) (bool, error) {
	groups, _ := claims["groups"].([]any)
	for _, g := range groups {
		if s, ok := g.(string); ok && m.AdminGroup != "" && s == m.AdminGroup {
			return true, nil
		}
	}
	return false, nil
}
