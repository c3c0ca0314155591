package repository

import (
	"github.com/FelixWeidner/OpsForge/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// APIKeyRepository defines the interface for API key admission lookups.
// The admission path resolves a key hash to the key, its owning user and
// the user's entitlement in one round trip.
type APIKeyRepository interface {
	Create(key *models.APIKey) error
	GetByHash(hash string) (*models.APIKey, *models.User, *models.Entitlement, error)
	TouchLastUsed(keyID uint) error
	ListByUser(userID uint) ([]models.APIKey, error)
}

// UsageRepository appends usage-accounting records.
type UsageRepository interface {
	Create(record *models.APIUsage) error
	CountByKeySince(keyID uint, sinceDays int) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User   UserRepository
	APIKey APIKeyRepository
	Usage  UsageRepository
}
