package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals credentials before they are written to a shared store.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

const (
	// Versioned prefix to allow future key/algorithm rotations without flushing stored credentials.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor constructs a new AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// NewEncryptorFromPassphrase derives an AES-256 key from passphrase.
// An empty passphrase yields a PlainEncryptor.
func NewEncryptorFromPassphrase(passphrase string) (Encryptor, error) {
	if passphrase == "" {
		return PlainEncryptor{}, nil
	}
	key := sha256.Sum256([]byte(passphrase))
	return NewAESGCMEncryptor(key[:])
}

// Encrypt seals plaintext with a random nonce and returns a versioned base64 string.
func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// nonce||ciphertext
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a string produced by Encrypt.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, sealedPrefixV1) {
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", prefixOf(ciphertext))
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

// PlainEncryptor stores plaintext with a prefix marker. Used when no encryption key is configured.
type PlainEncryptor struct{}

func (PlainEncryptor) Encrypt(plaintext []byte) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (PlainEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, plainPrefix) {
		return nil, fmt.Errorf("invalid plain ciphertext (prefix: %s)", prefixOf(ciphertext))
	}
	return base64.StdEncoding.DecodeString(ciphertext[len(plainPrefix):])
}

func prefixOf(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
