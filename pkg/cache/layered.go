package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LayeredCache is a two-level cache: L1 in memory, L2 a shared Service
// (normally Redis). Writes go through to L2 first. With an InvalidationBus,
// writes and deletes also evict the L1 copies held by other instances.
type LayeredCache struct {
	id    string
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration

	mu   sync.Mutex
	bus  InvalidationBus
	stop func() error
}

func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		L1TTL:         time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		id:    uuid.NewString(),
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:    l2,
		l1TTL: cfg.L1TTL,
	}
}

// SubscribeInvalidations joins bus. It returns after the subscription is
// live, so later writes by other instances are seen.
func (lc *LayeredCache) SubscribeInvalidations(ctx context.Context, bus InvalidationBus) error {
	stop, err := bus.Subscribe(ctx, lc.apply)
	if err != nil {
		return fmt.Errorf("layered cache invalidations: %w", err)
	}
	lc.mu.Lock()
	lc.bus, lc.stop = bus, stop
	lc.mu.Unlock()
	return nil
}

func (lc *LayeredCache) apply(inv Invalidation) {
	if inv.Source == lc.id {
		return
	}
	ctx := context.Background()
	if len(inv.Keys) > 0 {
		_ = lc.l1.Delete(ctx, inv.Keys...)
	}
	if inv.Pattern != "" {
		_ = lc.l1.DeleteByPattern(ctx, inv.Pattern)
	}
}

func (lc *LayeredCache) announce(ctx context.Context, inv Invalidation) error {
	lc.mu.Lock()
	bus := lc.bus
	lc.mu.Unlock()
	if bus == nil {
		return nil
	}
	inv.Source = lc.id
	return bus.Publish(ctx, inv)
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	lc.l1.setRaw(key, data, lc.boundL1(expiration))
	return lc.announce(ctx, Invalidation{Keys: []string{key}})
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := lc.l1.getRaw(key); ok {
		return decode(data, dest)
	}

	var data []byte
	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	lc.l1.setRaw(key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) boundL1(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	if err := lc.l2.Delete(ctx, keys...); err != nil {
		return err
	}
	return lc.announce(ctx, Invalidation{Keys: keys})
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	if err := lc.l2.DeleteByPattern(ctx, pattern); err != nil {
		return err
	}
	return lc.announce(ctx, Invalidation{Pattern: pattern})
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	lc.mu.Lock()
	stop := lc.stop
	lc.bus, lc.stop = nil, nil
	lc.mu.Unlock()
	if stop != nil {
		_ = stop()
	}
	_ = lc.l1.Close()
	return lc.l2.Close()
}
