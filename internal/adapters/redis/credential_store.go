package redis

// Package redis provides Redis-based adapters for credential persistence and change fan-out.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	"github.com/target/storefront-admin/internal/data/cryptoutil"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

// DefaultKeyPrefix namespaces credential keys.
const DefaultKeyPrefix = "storefront:credential:"

// CredentialStoreOptions configures a CredentialStore.
type CredentialStoreOptions struct {
	Client    redis.UniversalClient // Required
	Encryptor cryptoutil.Encryptor  // Optional: defaults to PlainEncryptor
	Prefix    string                // Optional: defaults to DefaultKeyPrefix
}

// CredentialStore is a Redis-based credential store for multi-process deployments.
// Entries expire with the credential's ExpiresAt; tokens are sealed with the Encryptor.
type CredentialStore struct {
	client redis.UniversalClient
	enc    cryptoutil.Encryptor
	prefix string
	now    func() time.Time
}

// NewCredentialStore creates a new Redis-based credential store.
func NewCredentialStore(opts CredentialStoreOptions) *CredentialStore {
	if opts.Client == nil {
		panic("redis CredentialStore requires Client")
	}
	s := &CredentialStore{
		client: opts.Client,
		enc:    opts.Encryptor,
		prefix: opts.Prefix,
		now:    time.Now,
	}
	if s.enc == nil {
		s.enc = cryptoutil.PlainEncryptor{}
	}
	if s.prefix == "" {
		s.prefix = DefaultKeyPrefix
	}
	return s
}

// storedCredential is the at-rest form; Token holds the sealed token.
type storedCredential struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *CredentialStore) Save(ctx context.Context, cred domainauth.Credential) error {
	if cred.ClientID == "" {
		return errors.New("credential client ID cannot be empty")
	}

	var ttl time.Duration
	if !cred.ExpiresAt.IsZero() {
		ttl = cred.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return errors.New("credential is expired")
		}
	}

	sealed, err := s.enc.Encrypt([]byte(cred.Token))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	data, err := json.Marshal(storedCredential{
		UserID:    cred.UserID,
		Email:     cred.Email,
		Token:     sealed,
		IssuedAt:  cred.IssuedAt,
		ExpiresAt: cred.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	return s.client.Set(ctx, s.prefix+cred.ClientID, data, ttl).Err()
}

func (s *CredentialStore) Get(ctx context.Context, clientID string) (domainauth.Credential, error) {
	if clientID == "" {
		return domainauth.Credential{}, apperrors.NotFound("no credential for empty client ID")
	}

	data, err := s.client.Get(ctx, s.prefix+clientID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Credential{}, apperrors.NotFoundf("no credential for client %q", clientID)
		}
		return domainauth.Credential{}, fmt.Errorf("redis get: %w", err)
	}

	var stored storedCredential
	if unmarshalErr := json.Unmarshal(data, &stored); unmarshalErr != nil {
		return domainauth.Credential{}, fmt.Errorf("unmarshal credential: %w", unmarshalErr)
	}
	token, err := s.enc.Decrypt(stored.Token)
	if err != nil {
		return domainauth.Credential{}, fmt.Errorf("open credential: %w", err)
	}

	cred := domainauth.Credential{
		ClientID:  clientID,
		UserID:    stored.UserID,
		Email:     stored.Email,
		Token:     string(token),
		IssuedAt:  stored.IssuedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	if cred.Expired(s.now()) {
		if deleteErr := s.Delete(ctx, clientID); deleteErr != nil {
			return domainauth.Credential{}, fmt.Errorf("cleanup expired credential: %w", deleteErr)
		}
		return domainauth.Credential{}, apperrors.NotFoundf("credential for client %q expired", clientID)
	}
	return cred, nil
}

func (s *CredentialStore) Delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+clientID).Err()
}
