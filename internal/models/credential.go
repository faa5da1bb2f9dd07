package models

import "gorm.io/gorm"

// Credential holds a user's exchange API key pair, encrypted at rest.
type Credential struct {
	gorm.Model
	UserID          string `gorm:"uniqueIndex;not null"`
	APIKeyCipher    string `gorm:"not null"`
	APISecretCipher string `gorm:"not null"`
}
