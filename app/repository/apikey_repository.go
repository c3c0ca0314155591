package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
)

type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates an API key repository backed by GORM.
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(key *models.APIKey) error {
	return r.db.Create(key).Error
}

// GetByHash resolves a key hash to the key, its owner and the owner's
// entitlement. A missing entitlement row is not an error: users who never
// completed a checkout are on the free plan.
func (r *apiKeyRepository) GetByHash(hash string) (*models.APIKey, *models.User, *models.Entitlement, error) {
	var key models.APIKey
	if err := r.db.Where("key_hash = ?", hash).First(&key).Error; err != nil {
		return nil, nil, nil, err
	}

	var user models.User
	if err := r.db.First(&user, key.UserID).Error; err != nil {
		return nil, nil, nil, err
	}

	var ent models.Entitlement
	if err := r.db.Where("user_id = ?", key.UserID).First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &key, &user, nil, nil
		}
		return nil, nil, nil, err
	}
	return &key, &user, &ent, nil
}

func (r *apiKeyRepository) TouchLastUsed(keyID uint) error {
	now := time.Now()
	return r.db.Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Updates(map[string]any{"last_used_at": now}).Error
}

func (r *apiKeyRepository) ListByUser(userID uint) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&keys).Error
	return keys, err
}
