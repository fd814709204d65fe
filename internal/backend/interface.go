package backend

import (
	"context"
	"time"

	"spese-insights/internal/adapters"
	"spese-insights/internal/anomaly"
	"spese-insights/internal/core"
	"spese-insights/internal/forecast"
	"spese-insights/internal/services"
)

// Store is everything the application needs from a storage backend.
type Store interface {
	anomaly.ExpenseSource
	anomaly.Store
	forecast.HistorySource
	forecast.Store
	services.ExpenseWriter
	services.AnomalyReviewer
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional publisher and the cleanup hook.
type BackendResult struct {
	Store Store
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher services.Publisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireAMQP turns an unreachable broker into an error instead of a warning.
	RequireAMQP bool

	CategoryCacheTTL  time.Duration
	CategoryCacheSize int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// cachedStore serves category reads through a CategoryCache.
type cachedStore struct {
	Store
	categories *adapters.CategoryCache
}

func (s *cachedStore) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.categories.ListCategories(ctx, userID)
}

func (s *cachedStore) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	return s.categories.CreateCategory(ctx, userID, name)
}
