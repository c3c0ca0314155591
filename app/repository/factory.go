package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// NewRepositories creates all repository implementations for a DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		APIKey: NewAPIKeyRepository(db),
		Usage:  NewUsageRepository(db),
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetAPIKeyRepository returns the API key repository instance
func (f *Factory) GetAPIKeyRepository() APIKeyRepository {
	return f.GetRepositories().APIKey
}

// GetUsageRepository returns the usage repository instance
func (f *Factory) GetUsageRepository() UsageRepository {
	return f.GetRepositories().Usage
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global factory, initializing it lazily from
// the provided DB on first use.
func GetGlobalFactory() *Factory {
	return globalFactory
}

// NewFactoryWithRepositories builds a factory over pre-built repository
// implementations. Only used by tests.
func NewFactoryWithRepositories(repos *Repositories) *Factory {
	f := &Factory{repos: repos}
	f.once.Do(func() {})
	return f
}

// SetGlobalFactory replaces the global factory. Only used by tests.
func SetGlobalFactory(f *Factory) {
	factoryOnce.Do(func() {})
	globalFactory = f
}

// ResetGlobalFactory clears the singleton. Only used by tests.
func ResetGlobalFactory() {
	globalFactory = nil
	factoryOnce = sync.Once{}
}
