package cache

import (
	"context"
	"errors"
	"time"

	"FinFolio/internal/domain/models"
	"FinFolio/internal/domain/repository"
)

// Instrumented records hit/miss counts of another AnalysisCache.
type Instrumented struct {
	AnalysisCache
	metrics repository.Metrics
}

func NewInstrumented(c AnalysisCache, m repository.Metrics) *Instrumented {
	return &Instrumented{AnalysisCache: c, metrics: m}
}

func (c *Instrumented) Get(ctx context.Context, key models.ScopeKey) (*models.CacheEntry, error) {
	start := time.Now()
	e, err := c.AnalysisCache.Get(ctx, key)
	if c.metrics != nil {
		c.metrics.RecordLatency("analysis_cache_get", time.Since(start).Seconds())
		switch {
		case err == nil:
			c.metrics.RecordCacheLookup(string(key.Kind), true)
		case errors.Is(err, ErrCacheMiss):
			c.metrics.RecordCacheLookup(string(key.Kind), false)
		default:
			c.metrics.RecordError("analysis_cache")
		}
	}
	return e, err
}

type locker interface {
	TryLock(ctx context.Context, key models.ScopeKey, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key models.ScopeKey) error
}

// TryLock forwards to the wrapped cache. Caches without cross-process locking
// always grant the lock.
func (c *Instrumented) TryLock(ctx context.Context, key models.ScopeKey, ttl time.Duration) (bool, error) {
	if lk, ok := c.AnalysisCache.(locker); ok {
		return lk.TryLock(ctx, key, ttl)
	}
	return true, nil
}

func (c *Instrumented) Unlock(ctx context.Context, key models.ScopeKey) error {
	if lk, ok := c.AnalysisCache.(locker); ok {
		return lk.Unlock(ctx, key)
	}
	return nil
}
