package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spese-insights/internal/adapters"
	"spese-insights/internal/amqp"
	"spese-insights/internal/cache"
	"spese-insights/internal/storage"
	"spese-insights/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// dialAMQP is swapped in tests.
	dialAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:   logger,
		dialAMQP: amqp.NewClient,
	}
}

// CreateBackend opens the configured store, wraps it with the category cache
// and connects the AMQP publisher when a URL is set.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	closers := []func() error{store.Close}

	var manager *cache.Manager
	if config.CategoryCacheTTL > 0 {
		categories := adapters.NewCategoryCache(store, config.CategoryCacheTTL, config.CategoryCacheSize)
		store = &cachedStore{Store: store, categories: categories}
		manager = cache.NewManager()
		manager.Register(categories.Cleaner())
		manager.StartCleanup(config.CategoryCacheTTL)
		closers = append([]func() error{func() error { manager.Stop(); return nil }}, closers...)
	}

	result := &BackendResult{Store: store}

	if config.AMQPURL != "" {
		client, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireAMQP:
			closeAll(closers)
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without analysis requests", "error", err)
		default:
			// only a connected client becomes the Publisher, never a nil *Client
			result.Publisher = client
			closers = append([]func() error{client.Close}, closers...)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error { return closeAll(closers) }
	return result, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
