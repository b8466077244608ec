package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	apperrors "github.com/target/storefront-admin/internal/errors"
)

// MinSecretLength is the shortest secret accepted for new accounts.
const MinSecretLength = 6

// NormalizeIdentifier trims and lower-cases an email identifier before lookup or storage.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// ValidateIdentifier returns an InvalidIdentifier error unless identifier is a valid email.
func ValidateIdentifier(identifier string) error {
	if err := validation.Validate(identifier, validation.Required, is.Email); err != nil {
		return apperrors.InvalidIdentifier(err)
	}
	return nil
}

// ValidateSecret returns a WeakSecret error when secret is shorter than MinSecretLength.
func ValidateSecret(secret string) error {
	if err := validation.Validate(secret, validation.Required, validation.Length(MinSecretLength, 0)); err != nil {
		return apperrors.WeakSecret(err)
	}
	return nil
}

// Validate checks a new account's identifier and secret. The identifier is checked first.
func (a NewAccount) Validate() error {
	if err := ValidateIdentifier(NormalizeIdentifier(a.Identifier)); err != nil {
		return err
	}
	return ValidateSecret(a.Secret)
}
