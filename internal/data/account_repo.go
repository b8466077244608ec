package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/storefront-admin/internal/data/cryptoutil"
	"github.com/target/storefront-admin/internal/data/pgxutil"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

const capabilityAdmin = string(domainauth.CapabilityAdmin)

// AccountRepo implements ports.Directory using PostgreSQL.
type AccountRepo struct {
	DB *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

type accountRow struct {
	ID         string `db:"id"`
	Email      string `db:"email"`
	SecretHash string `db:"secret_hash"`
}

// Authenticate verifies identifier and secret against the stored bcrypt hash.
func (r *AccountRepo) Authenticate(ctx context.Context, identifier, secret string) (domainauth.Identity, error) {
	email := domainauth.NormalizeIdentifier(identifier)
	if email == "" || secret == "" {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}

	var row accountRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id::text AS id, email, secret_hash FROM accounts WHERE email = $1`, email)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[accountRow])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		cryptoutil.CompareMissing(secret)
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	if err != nil {
		return domainauth.Identity{}, apperrors.MapDBError(err)
	}

	return verifySecret(row.ID, row.Email, row.SecretHash, secret)
}

// CreateAccount inserts the account and, when requested, its admin privilege in one transaction.
func (r *AccountRepo) CreateAccount(ctx context.Context, in domainauth.NewAccount) (domainauth.Identity, error) {
	hash, err := hashNewAccount(in)
	if err != nil {
		return domainauth.Identity{}, err
	}
	email := domainauth.NormalizeIdentifier(in.Identifier)

	var id string
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO accounts (email, secret_hash) VALUES ($1, $2) RETURNING id::text`,
			email, hash,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if !in.Privileged {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO account_privileges (account_id, capability) VALUES ($1, $2)`,
			id, capabilityAdmin,
		); err != nil {
			return fmt.Errorf("grant admin: %w", err)
		}
		return nil
	}})
	if err != nil {
		return domainauth.Identity{}, apperrors.MapDBError(err)
	}

	return domainauth.Identity{ID: id, Email: email}, nil
}

// IsPrivileged reports whether the account holds the admin capability.
func (r *AccountRepo) IsPrivileged(ctx context.Context, identity domainauth.Identity) (bool, error) {
	if _, err := uuid.Parse(identity.ID); err != nil {
		return false, nil
	}
	var ok bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM account_privileges WHERE account_id = $1 AND capability = $2)`,
		identity.ID, capabilityAdmin,
	).Scan(&ok)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return ok, nil
}

// AdminExists reports whether any account holds the admin capability.
func (r *AccountRepo) AdminExists(ctx context.Context) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM account_privileges WHERE capability = $1)`,
		capabilityAdmin,
	).Scan(&ok)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return ok, nil
}

// hashNewAccount validates in and returns the bcrypt hash of its secret.
func hashNewAccount(in domainauth.NewAccount) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	hash, err := cryptoutil.HashSecret(in.Secret)
	if errors.Is(err, cryptoutil.ErrSecretTooLong) {
		return "", apperrors.WeakSecret(err)
	}
	if err != nil {
		return "", apperrors.Unknown(fmt.Errorf("hash secret: %w", err))
	}
	return hash, nil
}

func verifySecret(id, email, hash, secret string) (domainauth.Identity, error) {
	match, err := cryptoutil.CompareSecret(hash, secret)
	if err != nil {
		return domainauth.Identity{}, apperrors.Unknown(fmt.Errorf("compare secret: %w", err))
	}
	if !match {
		return domainauth.Identity{}, apperrors.InvalidCredentials(nil)
	}
	return domainauth.Identity{ID: id, Email: email}, nil
}
