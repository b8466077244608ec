package cryptoutil

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost used for new secret hashes. Tests may lower it.
var HashCost = bcrypt.DefaultCost

// ErrSecretTooLong is returned when a secret exceeds bcrypt's 72 byte input limit.
var ErrSecretTooLong = bcrypt.ErrPasswordTooLong

// HashSecret returns the bcrypt hash of secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareSecret reports whether secret matches hash. A mismatch is not an error;
// a malformed hash is.
func CompareSecret(hash, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// CompareMissing spends the same work as CompareSecret for identifiers with no account,
// so unknown and wrong-secret sign-ins take similar time.
func CompareMissing(secret string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("storefront-missing-account"), HashCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
}
