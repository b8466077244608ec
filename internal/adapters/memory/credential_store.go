package memory

// Package memory provides process-local credential storage and change feeds.

import (
	"context"
	"sync"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

// CredentialStore implements ports.CredentialStore with a map.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]domainauth.Credential
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]domainauth.Credential)}
}

func (s *CredentialStore) Save(_ context.Context, cred domainauth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ClientID] = cred
	return nil
}

func (s *CredentialStore) Get(_ context.Context, clientID string) (domainauth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[clientID]
	if !ok {
		return domainauth.Credential{}, apperrors.NotFoundf("no credential for client %q", clientID)
	}
	return cred, nil
}

func (s *CredentialStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, clientID)
	return nil
}
