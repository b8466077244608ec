package ports

// Package ports defines interfaces (hexagonal ports) for session and identity behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// ChangeFunc receives the current identity, or nil when no principal is signed in.
type ChangeFunc func(identity *domainauth.Identity)

// IdentityProvider is the single boundary between the session store and the identity backend.
type IdentityProvider interface {
	// SignIn authenticates identifier/secret and makes the identity current.
	// Fails with InvalidCredentials or ProviderUnavailable.
	SignIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error)

	// SignOut clears the current identity. The local identity is cleared even when an error is returned.
	SignOut(ctx context.Context) error

	// CreatePrivilegedAccount creates an account marked as admin. It does not sign in.
	// Fails with AlreadyExists, WeakSecret or InvalidIdentifier.
	CreatePrivilegedAccount(ctx context.Context, identifier, secret string) error

	// IsAdmin reports whether identity holds admin privilege. Lookup misses and errors yield false.
	IsAdmin(ctx context.Context, identity domainauth.Identity) bool

	// SubscribeToChanges calls fn with the current identity once it is resolved and again on every change.
	SubscribeToChanges(fn ChangeFunc) (unsubscribe func())
}

// Directory stores accounts and answers privilege lookups for an IdentityProvider.
type Directory interface {
	Authenticate(ctx context.Context, identifier, secret string) (domainauth.Identity, error)
	CreateAccount(ctx context.Context, in domainauth.NewAccount) (domainauth.Identity, error)
	IsPrivileged(ctx context.Context, identity domainauth.Identity) (bool, error)
	AdminExists(ctx context.Context) (bool, error)
}

// CredentialStore persists the signed-in credential per client.
// Get returns a NotFound error when no credential is stored.
type CredentialStore interface {
	Save(ctx context.Context, cred domainauth.Credential) error
	Get(ctx context.Context, clientID string) (domainauth.Credential, error)
	Delete(ctx context.Context, clientID string) error
}

// ChangeFeed broadcasts credential changes between processes sharing a CredentialStore.
type ChangeFeed interface {
	Publish(ctx context.Context, ev domainauth.ChangeEvent) error
	// Listen delivers events to fn until ctx is done.
	Listen(ctx context.Context, fn func(domainauth.ChangeEvent)) error
}

// PrivilegeMatcher decides admin privilege from identity-provider claims.
type PrivilegeMatcher interface {
	IsAdmin(claims map[string]any) (bool, error)
}
