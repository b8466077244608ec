package sqlite

// Package sqlite provides a single-file account directory for small deployments and local runs.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/target/storefront-admin/internal/data/cryptoutil"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

// AccountModel is the Bun model for accounts.
type AccountModel struct {
	bun.BaseModel `bun:"table:accounts"`

	ID         string    `bun:"id,pk"`
	Email      string    `bun:"email,notnull,unique"`
	SecretHash string    `bun:"secret_hash,notnull"`
	Admin      bool      `bun:"admin,notnull,default:false"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// AccountStore implements ports.Directory using Bun over SQLite.
type AccountStore struct {
	db *bun.DB
}

// Open opens (or creates) the SQLite database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*AccountStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	sqldb.SetMaxOpenConns(1)

	store := NewAccountStore(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewAccountStore wraps an existing Bun database.
func NewAccountStore(db *bun.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Migrate creates the accounts table if it does not exist.
func (s *AccountStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*AccountModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *AccountStore) Close() error {
	return s.db.Close()
}

func (s *AccountStore) Authenticate(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	email := domainauth.NormalizeIdentifier(identifier)
	if email == "" || secret == "" {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}

	var m AccountModel
	err := s.db.NewSelect().
		Model(&m).
		Where("email = ?", email).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		cryptoutil.CompareMissing(secret)
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	if err != nil {
		return domainauth.Identity{}, apperrors.MapDBError(err)
	}

	match, err := cryptoutil.CompareSecret(m.SecretHash, secret)
	if err != nil {
		return domainauth.Identity{}, apperrors.Unknown(fmt.Errorf("compare secret: %w", err))
	}
	if !match {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	return domainauth.Identity{ID: m.ID, Email: m.Email}, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, in domainauth.NewAccount) (domainauth.Identity, error) {
	if err := in.Validate(); err != nil {
		return domainauth.Identity{}, err
	}
	hash, err := cryptoutil.HashSecret(in.Secret)
	if errors.Is(err, cryptoutil.ErrSecretTooLong) {
		return domainauth.Identity{}, apperrors.WeakSecret(err)
	}
	if err != nil {
		return domainauth.Identity{}, apperrors.Unknown(fmt.Errorf("hash secret: %w", err))
	}

	m := &AccountModel{
		ID:         uuid.NewString(),
		Email:      domainauth.NormalizeIdentifier(in.Identifier),
		SecretHash: hash,
		Admin:      in.Privileged,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return domainauth.Identity{}, apperrors.MapDBError(err)
	}
	return domainauth.Identity{ID: m.ID, Email: m.Email}, nil
}

func (s *AccountStore) IsPrivileged(ctx context.Context, identity domainauth.Identity) (bool, error) {
	ok, err := s.db.NewSelect().
		Model((*AccountModel)(nil)).
		Where("id = ?", identity.ID).
		Where("admin = ?", true).
		Exists(ctx)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return ok, nil
}

func (s *AccountStore) AdminExists(ctx context.Context) (bool, error) {
	ok, err := s.db.NewSelect().
		Model((*AccountModel)(nil)).
		Where("admin = ?", true).
		Exists(ctx)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return ok, nil
}
