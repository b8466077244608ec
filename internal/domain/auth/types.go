package auth

// Package auth contains domain-level types for the client session and its authorization gate.
// It is pure and free of framework/adapter concerns.

import "time"

// Capability is the privilege held by the current principal.
// Keep string form for easy persistence and JSON.
type Capability string

const (
	CapabilityAnonymous Capability = "anonymous"
	CapabilityAdmin     Capability = "admin"
)

// Identity is the opaque principal record issued by the identity provider.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the authentication snapshot held by the session store.
// Values are replaced whole; never mutate a published snapshot in place.
type Session struct {
	CurrentUser *Identity  `json:"current_user"`
	Capability  Capability `json:"capability"`
	Loading     bool       `json:"loading"`
	Error       string     `json:"error,omitempty"`
}

// InitialSession is the snapshot published before the first identity resolution.
func InitialSession() Session {
	return Session{Capability: CapabilityAnonymous, Loading: true}
}

// AnonymousSession is the resolved, signed-out snapshot.
func AnonymousSession() Session {
	return Session{Capability: CapabilityAnonymous}
}

// AuthenticatedSession is the resolved snapshot for id with the given privilege.
func AuthenticatedSession(id Identity, admin bool) Session {
	s := Session{CurrentUser: &id, Capability: CapabilityAnonymous}
	if admin {
		s.Capability = CapabilityAdmin
	}
	return s
}

// IsAdmin reports whether the snapshot grants admin. Always false without a current user.
func (s Session) IsAdmin() bool {
	return s.CurrentUser != nil && s.Capability == CapabilityAdmin
}

// Authenticated reports whether a principal is signed in.
func (s Session) Authenticated() bool { return s.CurrentUser != nil }

// Normalize returns a copy that satisfies the snapshot invariants: no admin capability
// without a user, and a private copy of the identity so callers cannot alias it.
func (s Session) Normalize() Session {
	if s.CurrentUser == nil {
		s.Capability = CapabilityAnonymous
		return s
	}
	id := *s.CurrentUser
	s.CurrentUser = &id
	if s.Capability != CapabilityAdmin {
		s.Capability = CapabilityAnonymous
	}
	return s
}

// NewAccount is the input for creating an account in a directory.
type NewAccount struct {
	Identifier string
	Secret     string
	Privileged bool
}

// Credential is the persisted proof of a sign-in, keyed by the client that owns it.
// Token is a signed, self-describing token; UserID/Email mirror its claims for lookups.
type Credential struct {
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity returns the identity the credential was issued for.
func (c Credential) Identity() Identity {
	return Identity{ID: c.UserID, Email: c.Email}
}

// Expired reports whether the credential has expired at now. A zero ExpiresAt never expires.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ChangeKind is the type of a cross-process identity change.
type ChangeKind string

const (
	ChangeSignedIn  ChangeKind = "signed_in"
	ChangeSignedOut ChangeKind = "signed_out"
)

// ChangeEvent announces that the credential for ClientID changed in another process.
// Origin identifies the publishing provider instance so it can ignore its own events.
type ChangeEvent struct {
	ClientID string     `json:"client_id"`
	Origin   string     `json:"origin"`
	Kind     ChangeKind `json:"kind"`
	UserID   string     `json:"user_id,omitempty"`
	At       time.Time  `json:"at"`
}
