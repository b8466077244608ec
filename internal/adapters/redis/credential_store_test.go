package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	"github.com/target/storefront-admin/internal/data/cryptoutil"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func testCredential(clientID string) domainauth.Credential {
	now := time.Now().UTC().Truncate(time.Second)
	return domainauth.Credential{
		ClientID:  clientID,
		UserID:    "user-123",
		Email:     "owner@x.com",
		Token:     "header.payload.signature",
		IssuedAt:  now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
}

func TestCredentialStore_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	enc, err := cryptoutil.NewEncryptorFromPassphrase("test-passphrase")
	require.NoError(t, err)
	store := NewCredentialStore(CredentialStoreOptions{Client: client, Encryptor: enc})
	ctx := context.Background()

	cred := testCredential("storefront-admin")
	require.NoError(t, store.Save(ctx, cred))

	got, err := store.Get(ctx, "storefront-admin")
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, got.UserID)
	assert.Equal(t, cred.Email, got.Email)
	assert.Equal(t, cred.Token, got.Token)
	assert.WithinDuration(t, cred.ExpiresAt, got.ExpiresAt, time.Second)

	// The token must not be stored in the clear.
	raw, err := client.Get(ctx, DefaultKeyPrefix+"storefront-admin").Result()
	require.NoError(t, err)
	assert.NotContains(t, raw, cred.Token)

	ttl, err := client.TTL(ctx, DefaultKeyPrefix+"storefront-admin").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Minute)
}

func TestCredentialStore_GetMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(CredentialStoreOptions{Client: client})
	ctx := context.Background()

	_, err := store.Get(ctx, "nobody")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Get(ctx, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCredentialStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(CredentialStoreOptions{Client: client, Prefix: "test:cred:"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential("c1")))
	require.NoError(t, store.Delete(ctx, "c1"))
	require.NoError(t, store.Delete(ctx, "c1"))
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Get(ctx, "c1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCredentialStore_RejectsInvalid(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(CredentialStoreOptions{Client: client})
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, domainauth.Credential{}))

	expired := testCredential("c2")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	assert.Error(t, store.Save(ctx, expired))
}

func TestCredentialStore_ExpiredOnReadIsRemoved(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(CredentialStoreOptions{Client: client})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testCredential("c3")))

	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err := store.Get(ctx, "c3")
	assert.True(t, apperrors.IsNotFound(err))

	n, err := client.Exists(ctx, DefaultKeyPrefix+"c3").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
