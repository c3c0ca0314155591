package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
)

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a usage repository backed by GORM.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Create(record *models.APIUsage) error {
	return r.db.Create(record).Error
}

func (r *usageRepository) CountByKeySince(keyID uint, sinceDays int) (int64, error) {
	var count int64
	since := time.Now().AddDate(0, 0, -sinceDays)
	err := r.db.Model(&models.APIUsage{}).
		Where("api_key_id = ? AND created_at >= ?", keyID, since).
		Count(&count).Error
	return count, err
}
