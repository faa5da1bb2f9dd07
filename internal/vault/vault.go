// Package vault stores users' exchange API keys encrypted and hands them back decrypted on demand.
package vault

import (
	"context"
	"errors"
	"fmt"

	"futures-ema-bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotConfigured means the user has no usable key pair stored.
	ErrNotConfigured = errors.New("exchange api keys not configured")
	// ErrDecryption means a stored secret could not be decrypted.
	ErrDecryption = errors.New("stored api key could not be decrypted")
)

// Credentials is a decrypted exchange key pair. Do not log or persist it.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Vault persists encrypted credentials in the database.
type Vault struct {
	db     *gorm.DB
	cipher *Cipher
}

// New creates a Vault.
func New(db *gorm.DB, cipher *Cipher) *Vault {
	return &Vault{db: db, cipher: cipher}
}

// Store encrypts and saves a key pair, replacing any previous one for the user.
func (v *Vault) Store(ctx context.Context, userID, apiKey, apiSecret string) error {
	if userID == "" || apiKey == "" || apiSecret == "" {
		return fmt.Errorf("%w: user id, api key and secret are required", ErrNotConfigured)
	}
	keyCipher, err := v.cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	secretCipher, err := v.cipher.Encrypt(apiSecret)
	if err != nil {
		return fmt.Errorf("encrypt api secret: %w", err)
	}

	cred := models.Credential{UserID: userID, APIKeyCipher: keyCipher, APISecretCipher: secretCipher}
	err = v.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key_cipher", "api_secret_cipher", "updated_at"}),
	}).Create(&cred).Error
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Resolve loads and decrypts the key pair of a user.
func (v *Vault) Resolve(ctx context.Context, userID string) (Credentials, error) {
	var cred models.Credential
	err := v.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credentials{}, ErrNotConfigured
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if cred.APIKeyCipher == "" || cred.APISecretCipher == "" {
		return Credentials{}, ErrNotConfigured
	}

	apiKey, err := v.cipher.Decrypt(cred.APIKeyCipher)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	apiSecret, err := v.cipher.Decrypt(cred.APISecretCipher)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
}

// IsConfigured reports whether a key pair exists for the user without decrypting it.
func (v *Vault) IsConfigured(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := v.db.WithContext(ctx).Model(&models.Credential{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count credentials: %w", err)
	}
	return count > 0, nil
}
