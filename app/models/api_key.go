package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeySecretPrefix = "ofk_"

// APIKey stores the hashed credential used to admit requests to the
// generation API. The raw secret is shown once at creation and only its
// SHA-256 hash is persisted.
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	KeyHash    string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	KeyPrefix  string     `gorm:"type:varchar(20);not null;default:''" json:"key_prefix"`
	Name       string     `gorm:"type:varchar(100);not null;default:''" json:"name"`
	Status     string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	LastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the key may be used for admission.
func (k *APIKey) IsActive() bool {
	return k != nil && k.Status == APIKeyStatusActive
}

// Revoke marks the key unusable without deleting the record.
func (k *APIKey) Revoke() {
	k.Status = APIKeyStatusRevoked
}

// TouchUsage updates the last-used timestamp metadata.
func (k *APIKey) TouchUsage() {
	now := time.Now()
	k.LastUsedAt = &now
}

// IssueAPIKey generates key material for a new API key and returns the raw
// secret. Callers must persist the struct via the database afterwards.
func IssueAPIKey(userID uint, name string) (*APIKey, string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return nil, "", err
	}
	key := &APIKey{
		UserID:    userID,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Name:      strings.TrimSpace(name),
		Status:    APIKeyStatusActive,
	}
	return key, rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := apiKeySecretPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}
