package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinFolio/internal/domain/models"
	pkgcache "FinFolio/pkg/cache"
)

// ServiceAnalysisCache stores entries as JSON in a key/value Service (redis,
// memory or layered) under ScopeKey.String(). The store's native expiry
// mirrors ExpiresAt; validity is still checked on read.
type ServiceAnalysisCache struct {
	store pkgcache.Service
	now   func() time.Time
}

type ServiceOption func(*ServiceAnalysisCache)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(c *ServiceAnalysisCache) { c.now = now }
}

func NewServiceAnalysisCache(store pkgcache.Service, opts ...ServiceOption) *ServiceAnalysisCache {
	c := &ServiceAnalysisCache{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ServiceAnalysisCache) Get(ctx context.Context, key models.ScopeKey) (*models.CacheEntry, error) {
	var e models.CacheEntry
	if err := c.store.Get(ctx, key.String(), &e); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("analysis cache get %s: %w", key, err)
	}
	if !matches(&e, key) || !e.ValidAt(c.now()) {
		return nil, ErrCacheMiss
	}
	return &e, nil
}

func (c *ServiceAnalysisCache) Put(ctx context.Context, key models.ScopeKey, payload models.AnalysisPayload, ttl time.Duration) (*models.CacheEntry, error) {
	e := newEntry(key, payload, ttl, c.now())
	if err := c.store.Set(ctx, key.String(), e, e.ExpiresAt.Sub(e.GeneratedAt)); err != nil {
		return nil, fmt.Errorf("analysis cache put %s: %w", key, err)
	}
	return e, nil
}

func (c *ServiceAnalysisCache) Invalidate(ctx context.Context, key models.ScopeKey) error {
	return c.store.Delete(ctx, key.String())
}

func (c *ServiceAnalysisCache) InvalidateKind(ctx context.Context, kind models.ScopeKind) error {
	return c.store.DeleteByPattern(ctx, kindPattern(kind))
}

// TryLock guards a regeneration of key so concurrent requests do not all call
// the generator. Locks live in the same store.
func (c *ServiceAnalysisCache) TryLock(ctx context.Context, key models.ScopeKey, ttl time.Duration) (bool, error) {
	return c.store.TryLock(ctx, "lock:"+key.String(), ttl)
}

func (c *ServiceAnalysisCache) Unlock(ctx context.Context, key models.ScopeKey) error {
	return c.store.Unlock(ctx, "lock:"+key.String())
}
