package cache

import (
	"context"
	"sync"
	"time"

	"FinFolio/internal/domain/models"
)

// MemoryAnalysisCache keeps entries in a map guarded by a RWMutex. It backs
// single-process deployments; generation locks are process local.
type MemoryAnalysisCache struct {
	mu    sync.RWMutex
	m     map[models.ScopeKey]*models.CacheEntry
	locks map[models.ScopeKey]time.Time
	max   int
	now   func() time.Time
}

type MemoryOption func(*MemoryAnalysisCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryAnalysisCache) { c.now = now }
}

// WithMaxEntries caps the number of stored entries. When full, expired
// entries go first, then the oldest generation.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryAnalysisCache) {
		if n > 0 {
			c.max = n
		}
	}
}

func NewMemoryAnalysisCache(opts ...MemoryOption) *MemoryAnalysisCache {
	c := &MemoryAnalysisCache{
		m:     make(map[models.ScopeKey]*models.CacheEntry),
		locks: make(map[models.ScopeKey]time.Time),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryAnalysisCache) Get(_ context.Context, key models.ScopeKey) (*models.CacheEntry, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || !matches(e, key) {
		return nil, ErrCacheMiss
	}
	if !e.ValidAt(c.now()) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur == e {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	out := *e
	return &out, nil
}

func (c *MemoryAnalysisCache) Put(_ context.Context, key models.ScopeKey, payload models.AnalysisPayload, ttl time.Duration) (*models.CacheEntry, error) {
	e := newEntry(key, payload, ttl, c.now())
	c.mu.Lock()
	if _, ok := c.m[key]; !ok && c.max > 0 && len(c.m) >= c.max {
		c.evictLocked(e.GeneratedAt)
	}
	c.m[key] = e
	c.mu.Unlock()
	out := *e
	return &out, nil
}

func (c *MemoryAnalysisCache) evictLocked(now time.Time) {
	var (
		oldest    models.ScopeKey
		oldestAt  time.Time
		haveOlder bool
	)
	for k, e := range c.m {
		if !e.ValidAt(now) {
			delete(c.m, k)
			continue
		}
		if !haveOlder || e.GeneratedAt.Before(oldestAt) {
			oldest, oldestAt, haveOlder = k, e.GeneratedAt, true
		}
	}
	if len(c.m) >= c.max && haveOlder {
		delete(c.m, oldest)
	}
}

// TryLock grants key to one caller until Unlock or ttl.
func (c *MemoryAnalysisCache) TryLock(_ context.Context, key models.ScopeKey, ttl time.Duration) (bool, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if until, ok := c.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	c.locks[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryAnalysisCache) Unlock(_ context.Context, key models.ScopeKey) error {
	c.mu.Lock()
	delete(c.locks, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryAnalysisCache) Invalidate(_ context.Context, key models.ScopeKey) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryAnalysisCache) InvalidateKind(_ context.Context, kind models.ScopeKind) error {
	c.mu.Lock()
	for k := range c.m {
		if k.Kind == kind {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
	return nil
}
