package errors

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// reSQLiteUnique extracts the column from SQLite messages: "UNIQUE constraint failed: accounts.email".
var reSQLiteUnique = regexp.MustCompile(`UNIQUE constraint failed: [a-z_]+\.([a-z_]+)`)

// MapDBError maps database errors from directory adapters to AppError instances.
// It handles common database error patterns including:
// - pgx.ErrNoRows / sql.ErrNoRows → NotFound
// - Unique constraint violations → AlreadyExists
// - Connection failures, shutdowns and resource exhaustion → ProviderUnavailable
// - Context timeouts/cancellations → ProviderUnavailable
//
// If the error is not a recognized database error, it is wrapped as Unknown.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ProviderUnavailable(err)
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "Record not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ProviderUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return ProviderUnavailable(err)
	}

	if m := reSQLiteUnique.FindStringSubmatch(err.Error()); len(m) == 2 {
		out := AlreadyExists(err)
		out.Field = m[1]
		return out
	}

	return Unknown(err)
}

// mapPgError maps PostgreSQL-specific errors to AppError instances.
func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code):
		return ProviderUnavailable(pgErr)
	default:
		return Unknown(pgErr)
	}
}

// mapUniqueViolation maps unique constraint violations to AlreadyExists errors.
func mapUniqueViolation(pgErr *pgconn.PgError) error {
	var field string

	// Prefer ColumnName metadata when available (most reliable)
	if pgErr.ColumnName != "" {
		field = pgErr.ColumnName
	}

	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}

	// Last resort: Infer from constraint name (e.g., "accounts_email_key" → "email")
	if field == "" {
		field = inferFieldFromConstraint(pgErr.ConstraintName)
	}

	out := AlreadyExists(pgErr)
	out.Field = field
	return out
}

// inferFieldFromConstraint attempts to infer the field name from a constraint name.
// e.g., "accounts_email_key" → "email"
// Returns empty string if inference fails or is ambiguous.
func inferFieldFromConstraint(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	parts := strings.Split(constraintName, "_")
	// Multi-column or expression constraints have more parts; avoid misleading names.
	if len(parts) != 3 {
		return ""
	}

	fieldCandidate := parts[1]
	if isFunctionName(fieldCandidate) {
		return ""
	}
	return fieldCandidate
}

// isFunctionName checks if a string looks like a common SQL function name
// used in expression indexes (e.g., lower, upper, trim, etc.)
func isFunctionName(s string) bool {
	switch strings.ToLower(s) {
	case "lower", "upper", "trim", "ltrim", "rtrim", "md5":
		return true
	}
	return false
}
