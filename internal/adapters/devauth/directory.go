package devauth

// Package devauth provides an in-memory, seed-driven Directory for local development and tests.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/target/storefront-admin/internal/data/cryptoutil"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

// SeedAccount is an account created when the directory starts.
type SeedAccount struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

// Seed is the on-disk seed file format.
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// LoadSeed reads a YAML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	if path == "" {
		return seed, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

type account struct {
	id    string
	email string
	hash  string
}

// Directory implements ports.Directory in memory.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]account
	admins  map[string]struct{}
}

// NewDirectory constructs a directory pre-populated with seed accounts.
func NewDirectory(seed Seed) (*Directory, error) {
	d := &Directory{
		byEmail: make(map[string]account),
		admins:  make(map[string]struct{}),
	}
	for _, a := range seed.Accounts {
		if _, err := d.CreateAccount(context.Background(), domainauth.NewAccount{
			Identifier: a.Email,
			Secret:     a.Password,
			Privileged: a.Admin,
		}); err != nil {
			return nil, fmt.Errorf("dev auth: seed account %q: %w", a.Email, err)
		}
	}
	return d, nil
}

// Authenticate returns the identity for identifier when secret matches.
func (d *Directory) Authenticate(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(err)
	}
	d.mu.RLock()
	acc, ok := d.byEmail[domainauth.NormalizeIdentifier(identifier)]
	d.mu.RUnlock()
	if !ok {
		cryptoutil.CompareMissing(secret)
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	match, err := cryptoutil.CompareSecret(acc.hash, secret)
	if err != nil {
		return domainauth.Identity{}, apperrors.Unknown(fmt.Errorf("compare secret: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, apperrors.ProviderUnavailable(err)
	}
	if !match {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	return domainauth.Identity{ID: acc.id, Email: acc.email}, nil
}

// CreateAccount validates and stores a new account.
func (d *Directory) CreateAccount(_ context.Context, in domainauth.NewAccount) (domainauth.Identity, error) {
	if err := in.Validate(); err != nil {
		return domainauth.Identity{}, err
	}
	hash, err := cryptoutil.HashSecret(in.Secret)
	if err != nil {
		if errors.Is(err, cryptoutil.ErrSecretTooLong) {
			return domainauth.Identity{}, apperrors.WeakSecret(err)
		}
		return domainauth.Identity{}, apperrors.Unknown(err)
	}

	email := domainauth.NormalizeIdentifier(in.Identifier)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[email]; exists {
		return domainauth.Identity{}, apperrors.AlreadyExists(nil)
	}
	acc := account{id: uuid.NewString(), email: email, hash: hash}
	d.byEmail[email] = acc
	if in.Privileged {
		d.admins[acc.id] = struct{}{}
	}
	return domainauth.Identity{ID: acc.id, Email: acc.email}, nil
}

// IsPrivileged reports whether identity is marked as admin.
func (d *Directory) IsPrivileged(_ context.Context, identity domainauth.Identity) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.admins[identity.ID]
	return ok, nil
}

// AdminExists reports whether any admin account exists.
func (d *Directory) AdminExists(_ context.Context) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.admins) > 0, nil
}
