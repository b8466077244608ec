package bootstrap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/target/storefront-admin/internal/adapters/identity"
	"github.com/target/storefront-admin/internal/data/cryptoutil"
)

// CreateEncryptor creates an AES-GCM encryptor for credentials written to shared storage.
// A 64-character hex key is used as-is; anything else is hashed to 32 bytes.
// Returns a plain encryptor if the key is empty or invalid (with warning log).
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if key == "" {
		if logger != nil {
			logger.Warn("session encryption key is empty; credentials are stored unencrypted")
		}
		return cryptoutil.PlainEncryptor{}
	}

	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		if enc, encErr := cryptoutil.NewAESGCMEncryptor(decoded); encErr == nil {
			return enc
		}
	}

	enc, err := cryptoutil.NewEncryptorFromPassphrase(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create encryptor; credentials are stored unencrypted", "error", err)
		}
		return cryptoutil.PlainEncryptor{}
	}
	return enc
}

// BuildTokenSigner derives the credential signing key from key.
// An empty key generates a random per-process key, so credentials do not survive a restart.
func BuildTokenSigner(key string, logger *slog.Logger) (*identity.TokenSigner, error) {
	var keyBytes []byte
	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := rand.Read(keyBytes); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		if logger != nil {
			logger.Warn("session signing key is empty; using an ephemeral key")
		}
	} else {
		sum := sha256.Sum256([]byte(key))
		keyBytes = sum[:]
	}
	return identity.NewTokenSigner(keyBytes, identity.DefaultIssuer, nil)
}
