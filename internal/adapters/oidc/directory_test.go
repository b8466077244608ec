package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/storefront-admin/internal/adapters/authroles"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/ports"
	"golang.org/x/oauth2"
)

type fakeIdP struct {
	users map[string]fakeUser
	down  atomic.Bool
}

type fakeUser struct {
	password string
	claims   map[string]any
}

// newFakeIdP serves discovery, a password-grant token endpoint and UserInfo.
// Access tokens are the username, which UserInfo resolves back to claims.
func newFakeIdP(t *testing.T, idp *fakeIdP) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/authorize",
			TokenEndpoint:         srv.URL + "/token",
			UserinfoEndpoint:      srv.URL + "/userinfo",
			JwksURI:               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if idp.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "temporarily_unavailable"})
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
			return
		}
		u, ok := idp.users[r.PostForm.Get("username")]
		if !ok || u.password != r.PostForm.Get("password") {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": r.PostForm.Get("username"),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		u, ok := idp.users[auth[len(prefix):]]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(u.claims)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDirectory(t *testing.T, idp *fakeIdP, matcher ports.PrivilegeMatcher) *Directory {
	t.Helper()
	srv := newFakeIdP(t, idp)
	dir, err := NewDirectory(context.Background(), DirectoryConfig{
		ClientID:     "storefront-admin",
		ClientSecret: "client-secret",
		Scope:        "profile email",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
		Matcher:      matcher,
	})
	require.NoError(t, err)
	return dir
}

func defaultIdP() *fakeIdP {
	return &fakeIdP{users: map[string]fakeUser{
		"owner@x.com": {password: "secret1", claims: map[string]any{
			"sub": "sub-owner", "email": "Owner@X.com", "groups": []any{"storefront-admins"},
		}},
		"clerk@x.com": {password: "secret2", claims: map[string]any{
			"sub": "sub-clerk", "mail": "clerk@x.com", "groups": []any{"staff"},
		}},
	}}
}

func TestNewDirectory_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config DirectoryConfig
		errMsg string
	}{
		{name: "missing client ID", config: DirectoryConfig{DiscoveryURL: "http://example.com"}, errMsg: "client ID is required"},
		{name: "missing discovery URL", config: DirectoryConfig{ClientID: "c"}, errMsg: "discovery URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirectory(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDirectory_Authenticate(t *testing.T) {
	dir := newTestDirectory(t, defaultIdP(), authroles.GroupMatcher{AdminGroups: []string{"storefront-admins"}})
	ctx := context.Background()

	owner, err := dir.Authenticate(ctx, "owner@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.Identity{ID: "sub-owner", Email: "owner@x.com"}, owner)

	admin, err := dir.IsPrivileged(ctx, owner)
	require.NoError(t, err)
	assert.True(t, admin)

	clerk, err := dir.Authenticate(ctx, "clerk@x.com", "secret2")
	require.NoError(t, err)
	assert.Equal(t, "clerk@x.com", clerk.Email)

	admin, err = dir.IsPrivileged(ctx, clerk)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestDirectory_AuthenticateFailures(t *testing.T) {
	idp := defaultIdP()
	dir := newTestDirectory(t, idp, nil)
	ctx := context.Background()

	_, err := dir.Authenticate(ctx, "owner@x.com", "wrong")
	assert.True(t, apperrors.IsInvalidCredentials(err), "got %v", err)

	_, err = dir.Authenticate(ctx, "", "secret1")
	assert.True(t, apperrors.IsInvalidCredentials(err))

	idp.down.Store(true)
	_, err = dir.Authenticate(ctx, "owner@x.com", "secret1")
	assert.True(t, apperrors.IsProviderUnavailable(err), "got %v", err)
}

func TestDirectory_PrivilegeWithoutCachedClaims(t *testing.T) {
	dir := newTestDirectory(t, defaultIdP(), authroles.GroupMatcher{AdminGroups: []string{"storefront-admins"}})

	admin, err := dir.IsPrivileged(context.Background(), domainauth.Identity{ID: "sub-owner"})
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestDirectory_AccountsAreExternal(t *testing.T) {
	dir := newTestDirectory(t, defaultIdP(), nil)
	ctx := context.Background()

	_, err := dir.CreateAccount(ctx, domainauth.NewAccount{Identifier: "new@x.com", Secret: "abcdef"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountsManagedExternally)

	exists, err := dir.AdminExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClassifyTokenError(t *testing.T) {
	badRequest := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}
	invalidGrant := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusOK}, ErrorCode: "invalid_grant"}
	serverError := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusInternalServerError}}

	assert.True(t, apperrors.IsInvalidCredentials(classifyTokenError(badRequest)))
	assert.True(t, apperrors.IsInvalidCredentials(classifyTokenError(invalidGrant)))
	assert.True(t, apperrors.IsProviderUnavailable(classifyTokenError(serverError)))
	assert.True(t, apperrors.IsProviderUnavailable(classifyTokenError(context.DeadlineExceeded)))
}

func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name       string
		claims     map[string]any
		identifier string
		want       domainauth.Identity
	}{
		{
			name:   "oidc shape",
			claims: map[string]any{"sub": "s1", "email": "A@X.com"},
			want:   domainauth.Identity{ID: "s1", Email: "a@x.com"},
		},
		{
			name:   "ad shape",
			claims: map[string]any{"samaccountname": "jdoe", "mail": "jdoe@x.com"},
			want:   domainauth.Identity{ID: "jdoe", Email: "jdoe@x.com"},
		},
		{
			name:       "email falls back to identifier",
			claims:     map[string]any{"sub": "s2"},
			identifier: "typed@x.com",
			want:       domainauth.Identity{ID: "s2", Email: "typed@x.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identityFromClaims(tt.claims, tt.identifier))
		})
	}
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "at"}).WithExtra(map[string]any{"id_token": "raw"})
	got, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	_, err = getIDTokenFromToken(&oauth2.Token{AccessToken: "at"})
	assert.Error(t, err)

	_, err = getIDTokenFromToken(nil)
	assert.Error(t, err)
}
