package oidc

// Package oidc provides a Directory backed by an external OpenID Connect identity provider.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/ports"
	"golang.org/x/oauth2"
)

// ErrAccountsManagedExternally is the cause returned by CreateAccount.
var ErrAccountsManagedExternally = errors.New("accounts are managed by the identity provider")

// DirectoryConfig holds configuration for the OIDC directory.
type DirectoryConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client           // Optional, defaults to a 30s-timeout client
	Matcher      ports.PrivilegeMatcher // Optional: without it nobody is admin
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// Directory implements ports.Directory with the OAuth2 resource-owner password grant.
// Claims seen at sign-in are cached per subject and fed to the PrivilegeMatcher.
type Directory struct {
	config     *oauth2.Config
	httpClient *http.Client
	matcher    ports.PrivilegeMatcher

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier

	mu     sync.RWMutex
	claims map[string]map[string]any
}

// NewDirectory creates a directory, fetching the discovery document once.
func NewDirectory(ctx context.Context, config DirectoryConfig) (*Directory, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Directory{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		matcher:      config.Matcher,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		claims:       make(map[string]map[string]any),
	}, nil
}

// Authenticate exchanges identifier/secret for tokens and resolves the identity from the
// ID token, falling back to the UserInfo endpoint.
func (d *Directory) Authenticate(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)

	token, err := d.config.PasswordCredentialsToken(ctx, identifier, secret)
	if err != nil {
		return domainauth.Identity{}, classifyTokenError(err)
	}

	claims, err := d.extractFromIDToken(ctx, token)
	if err != nil {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(fmt.Errorf("extract id_token: %w", err))
	}
	if claims == nil {
		if claims, err = d.fetchUserInfo(ctx, token.AccessToken); err != nil {
			return domainauth.Identity{}, apperrors.ProviderUnavailable(fmt.Errorf("get user info: %w", err))
		}
	}

	id := identityFromClaims(claims, identifier)
	if id.ID == "" {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(errors.New("identity provider returned no subject"))
	}

	d.mu.Lock()
	d.claims[id.ID] = claims
	d.mu.Unlock()
	return id, nil
}

// CreateAccount is not supported; accounts live in the identity provider.
func (d *Directory) CreateAccount(context.Context, domainauth.NewAccount) (domainauth.Identity, error) {
	return domainauth.Identity{}, apperrors.Wrap(ErrAccountsManagedExternally, apperrors.ErrCodeUnknown,
		"Accounts are managed by the identity provider.")
}

// IsPrivileged evaluates the cached claims for identity. Unknown subjects are not admin.
func (d *Directory) IsPrivileged(_ context.Context, identity domainauth.Identity) (bool, error) {
	if d.matcher == nil {
		return false, nil
	}
	d.mu.RLock()
	claims, ok := d.claims[identity.ID]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return d.matcher.IsAdmin(claims)
}

// AdminExists always reports true: administrators are provisioned in the identity provider.
func (d *Directory) AdminExists(context.Context) (bool, error) {
	return true, nil
}

// classifyTokenError maps token endpoint failures onto the session error codes.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_request" {
			return apperrors.InvalidCredentials(err)
		}
		if re.Response != nil && (re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return apperrors.InvalidCredentials(err)
		}
		return apperrors.ProviderUnavailable(err)
	}
	// Transport failures and timeouts.
	return apperrors.ProviderUnavailable(err)
}

// extractFromIDToken returns verified ID token claims, or nil when no ID token was requested or issued.
func (d *Directory) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	if !slices.Contains(d.config.Scopes, "openid") {
		return nil, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, nil
	}
	idTok, err := d.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return claims, nil
}

func (d *Directory) fetchUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ui, err := d.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var claims map[string]any
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return claims, nil
}

// identityFromClaims maps OIDC and AD/ADFS claim shapes into an Identity.
func identityFromClaims(claims map[string]any, identifier string) domainauth.Identity {
	email := firstNonEmpty(stringClaim(claims, "email"), stringClaim(claims, "mail"))
	if email == "" {
		email = identifier
	}
	return domainauth.Identity{
		ID:    firstNonEmpty(stringClaim(claims, "sub"), stringClaim(claims, "samaccountname")),
		Email: domainauth.NormalizeIdentifier(email),
	}
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
