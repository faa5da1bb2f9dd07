package vault

import (
	"context"
	"strings"
	"testing"

	"futures-ema-bot/internal/database"
	"futures-ema-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestVault(t *testing.T) (*Vault, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipherFromBase64(key)
	require.NoError(t, err)

	return New(db, c), db
}

func TestCipher_NonceIsRandom(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipherFromBase64(key)
	require.NoError(t, err)

	a, err := c.Encrypt("secret")
	require.NoError(t, err)
	b, err := c.Encrypt("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "same plaintext must not produce the same ciphertext")
	assert.True(t, strings.HasPrefix(a, "ENC[v1]:"))

	plain, err := c.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

func TestCipher_RejectsBadInput(t *testing.T) {
	_, err := NewCipher([]byte("short"), 1)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewCipherFromBase64("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	key, _ := GenerateKey()
	c, err := NewCipherFromBase64(key)
	require.NoError(t, err)

	_, err = c.Decrypt("plain-hex-from-legacy-scheme")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)
	tampered := sealed[:len(sealed)-4] + "AAA="
	_, err = c.Decrypt(tampered)
	assert.Error(t, err)
}

func TestVault_StoreAndResolve(t *testing.T) {
	v, db := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "user-1", "key-1", "secret-1"))

	var row models.Credential
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&row).Error)
	assert.NotContains(t, row.APIKeyCipher, "key-1", "keys are never stored in clear")

	creds, err := v.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "key-1", APISecret: "secret-1"}, creds)

	// replacing keeps a single row
	require.NoError(t, v.Store(ctx, "user-1", "key-2", "secret-2"))
	creds, err = v.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "key-2", creds.APIKey)

	var count int64
	db.Model(&models.Credential{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestVault_Resolve_NotConfigured(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotConfigured)

	ok, err := v.IsConfigured(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVault_Resolve_CorruptSecret(t *testing.T) {
	v, db := newTestVault(t)
	require.NoError(t, db.Create(&models.Credential{
		UserID:          "user-1",
		APIKeyCipher:    "ENC[v1]:bm90LWEtcmVhbC1jaXBoZXJ0ZXh0",
		APISecretCipher: "ENC[v1]:bm90LWEtcmVhbC1jaXBoZXJ0ZXh0",
	}).Error)

	_, err := v.Resolve(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestVault_Store_RequiresFields(t *testing.T) {
	v, _ := newTestVault(t)
	err := v.Store(context.Background(), "user-1", "", "secret")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
