package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	err := MapDBError(nil)
	if err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	for _, in := range []error{context.DeadlineExceeded, context.Canceled} {
		t.Run(in.Error(), func(t *testing.T) {
			err := MapDBError(in)
			if !IsProviderUnavailable(err) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), ErrCodeProviderUnavailable)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	for _, in := range []error{pgx.ErrNoRows, sql.ErrNoRows} {
		err := MapDBError(in)
		if !IsNotFound(err) {
			t.Errorf("MapDBError(%v) should be NotFound, got %v", in, GetCode(err))
		}
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "unique violation with column name",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_email_key",
				ColumnName:     "email",
			},
			wantField: "email",
		},
		{
			name: "unique violation with expression Detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_lower_idx",
				Detail:         `Key (lower(email))=(a@b.c) already exists.`,
			},
			wantField: "",
		},
		{
			name: "unique violation with Detail message",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_email_ci_unique",
				Detail:         `Key (email)=(a@b.c) already exists.`,
			},
			wantField: "email",
		},
		{
			name: "unique violation inferred from constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_email_key",
			},
			wantField: "email",
		},
		{
			name: "expression index constraint is ambiguous",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_lower_key",
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(fmt.Errorf("insert account: %w", tt.pgErr))
			if !IsAlreadyExists(err) {
				t.Fatalf("MapDBError() code = %v, want %v", GetCode(err), ErrCodeAlreadyExists)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestMapDBError_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}},
		{"too many connections", &pgconn.PgError{Code: pgerrcode.TooManyConnections}},
		{"conn done", sql.ErrConnDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := MapDBError(tt.err); !IsProviderUnavailable(err) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), ErrCodeProviderUnavailable)
			}
		})
	}
}

func TestMapDBError_SQLiteUnique(t *testing.T) {
	err := MapDBError(errors.New("constraint failed: UNIQUE constraint failed: accounts.email (2067)"))
	if !IsAlreadyExists(err) {
		t.Fatalf("MapDBError() code = %v, want %v", GetCode(err), ErrCodeAlreadyExists)
	}
	if GetField(err) != "email" {
		t.Errorf("MapDBError() field = %q, want email", GetField(err))
	}
}

func TestMapDBError_Unrecognized(t *testing.T) {
	cause := errors.New("syntax error")
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.SyntaxError})
	if GetCode(err) != ErrCodeUnknown {
		t.Errorf("pg syntax error code = %v, want unknown", GetCode(err))
	}
	err = MapDBError(cause)
	if GetCode(err) != ErrCodeUnknown || !errors.Is(err, cause) {
		t.Errorf("plain error should map to unknown and keep its cause, got %v", err)
	}
}
