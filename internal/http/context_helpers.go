package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries a copy of the given snapshot.
func SetSessionInContext(ctx context.Context, session domainauth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session.Normalize())
}

// GetSessionFromContext returns the snapshot stored by the session gate and a boolean indicating presence.
func GetSessionFromContext(ctx context.Context) (domainauth.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(domainauth.Session)
	return session, ok
}

// IsGuestUser reports whether the current request context carries no signed-in principal.
func IsGuestUser(ctx context.Context) bool {
	s, ok := GetSessionFromContext(ctx)
	return !ok || !s.Authenticated()
}

// sessionServiceKey carries the visitor's session store bound by VisitorSessions.
type sessionServiceKey struct{}

// SetSessionServiceInContext returns a child context that carries the visitor's session store.
func SetSessionServiceInContext(ctx context.Context, sessions SessionService) context.Context {
	return context.WithValue(ctx, sessionServiceKey{}, sessions)
}

// GetSessionServiceFromContext returns the session store bound to the request, if any.
func GetSessionServiceFromContext(ctx context.Context) (SessionService, bool) {
	sessions, ok := ctx.Value(sessionServiceKey{}).(SessionService)
	return sessions, ok && sessions != nil
}

// sessionsFor prefers the visitor's store bound to r and falls back to fallback.
func sessionsFor(r *http.Request, fallback SessionService) SessionService {
	if sessions, ok := GetSessionServiceFromContext(r.Context()); ok {
		return sessions
	}
	return fallback
}
