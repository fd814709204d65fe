// Package adapters decorates storage with process-local behaviour.
package adapters

import (
	"context"
	"strconv"
	"time"

	"spese-insights/internal/cache"
	"spese-insights/internal/core"
)

// CategorySource is the category side of the expense store.
type CategorySource interface {
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error)
}

// CategoryCache serves ListCategories from a per-user LRU. CreateCategory
// goes to the source and drops the user's entry.
type CategoryCache struct {
	source CategorySource
	cache  *cache.LRUCache[[]core.Category]
}

var _ CategorySource = (*CategoryCache)(nil)

// NewCategoryCache wraps source; a non-positive ttl disables caching.
func NewCategoryCache(source CategorySource, ttl time.Duration, maxUsers int) *CategoryCache {
	c := &CategoryCache{source: source}
	if ttl > 0 {
		c.cache = cache.NewLRUCache[[]core.Category](maxUsers, ttl)
	}
	return c
}

func cacheKey(userID int64) string {
	return "categories:" + strconv.FormatInt(userID, 10)
}

func (c *CategoryCache) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	if c.cache == nil {
		return c.source.ListCategories(ctx, userID)
	}
	if cached, ok := c.cache.Get(cacheKey(userID)); ok {
		return append([]core.Category(nil), cached...), nil
	}
	cats, err := c.source.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey(userID), append([]core.Category(nil), cats...))
	return cats, nil
}

func (c *CategoryCache) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	cat, err := c.source.CreateCategory(ctx, userID, name)
	if err == nil {
		c.Invalidate(userID)
	}
	return cat, err
}

// Invalidate forgets the cached categories of userID.
func (c *CategoryCache) Invalidate(userID int64) {
	if c.cache != nil {
		c.cache.Delete(cacheKey(userID))
	}
}

// Cleaner exposes the LRU to a cache.Manager; nil when caching is off.
func (c *CategoryCache) Cleaner() cache.Cleaner {
	if c.cache == nil {
		return nil
	}
	return c.cache
}
