package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// DefaultIssuer is the iss claim of credentials minted by this service.
const DefaultIssuer = "storefront-admin"

// TokenSigner mints and verifies the HS256 tokens carried by persisted credentials.
type TokenSigner struct {
	key    []byte
	issuer string
	now    func() time.Time
}

type credentialClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewTokenSigner returns a signer for key. Key must be at least 32 bytes.
func NewTokenSigner(key []byte, issuer string, now func() time.Time) (*TokenSigner, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(key))
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{key: append([]byte(nil), key...), issuer: issuer, now: now}, nil
}

// Issue mints a credential for id owned by clientID. A zero ttl never expires.
func (s *TokenSigner) Issue(clientID string, id domainauth.Identity, ttl time.Duration) (domainauth.Credential, error) {
	now := s.now()
	claims := credentialClaims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   s.issuer,
			Subject:  id.ID,
			Audience: jwt.ClaimStrings{clientID},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return domainauth.Credential{}, fmt.Errorf("sign credential: %w", err)
	}

	cred := domainauth.Credential{
		ClientID: clientID,
		UserID:   id.ID,
		Email:    id.Email,
		Token:    token,
		IssuedAt: claims.IssuedAt.Time,
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}

// Verify checks signature, issuer, audience and expiry, and returns the identity in the token.
func (s *TokenSigner) Verify(clientID, token string) (domainauth.Identity, error) {
	claims := &credentialClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(clientID),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify credential: %w", err)
	}
	if claims.Subject == "" {
		return domainauth.Identity{}, errors.New("verify credential: missing subject")
	}
	return domainauth.Identity{ID: claims.Subject, Email: claims.Email}, nil
}

// visitorAudience scopes visitor tokens so they never verify as credentials.
const visitorAudience = "storefront-admin/visitor"

// IssueVisitor mints a token naming the browser visitorID. Visitor tokens carry no identity.
func (s *TokenSigner) IssueVisitor(visitorID string) (string, error) {
	if visitorID == "" {
		return "", errors.New("issue visitor token: empty visitor id")
	}
	claims := jwt.RegisteredClaims{
		Issuer:   s.issuer,
		Subject:  visitorID,
		Audience: jwt.ClaimStrings{visitorAudience},
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign visitor token: %w", err)
	}
	return token, nil
}

// VerifyVisitor returns the visitor id carried by a token minted by IssueVisitor.
func (s *TokenSigner) VerifyVisitor(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(visitorAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify visitor token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("verify visitor token: missing subject")
	}
	return claims.Subject, nil
}
