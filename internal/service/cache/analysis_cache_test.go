package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"FinFolio/internal/domain/models"
	pkgcache "FinFolio/pkg/cache"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)} }

type backend struct {
	name string
	c    AnalysisCache
}

func backends(clk *clock) []backend {
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0), pkgcache.WithMemoryClock(clk.Now))
	return []backend{
		{"memory", NewMemoryAnalysisCache(WithClock(clk.Now))},
		{"service", NewServiceAnalysisCache(store, WithServiceClock(clk.Now))},
	}
}

func payload(text string) models.AnalysisPayload {
	rsi := 55.5
	return models.AnalysisPayload{
		Narrative:  text,
		Indicators: &models.IndicatorSet{RSI: &rsi, Trend: models.TrendSideways},
		Disclaimer: "not advice",
	}
}

func TestPutGetSameKind(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(newClock()) {
		key := models.AssetKey("aapl")
		if _, err := b.c.Put(ctx, key, payload("hello"), 24*time.Hour); err != nil {
			t.Fatalf("%s put: %v", b.name, err)
		}
		e, err := b.c.Get(ctx, models.AssetKey("AAPL"))
		if err != nil {
			t.Fatalf("%s get: %v", b.name, err)
		}
		if e.Payload.Narrative != "hello" || e.Payload.Indicators == nil || *e.Payload.Indicators.RSI != 55.5 {
			t.Fatalf("%s payload %+v", b.name, e.Payload)
		}
	}
}

func TestCrossKindIsMiss(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(newClock()) {
		_, _ = b.c.Put(ctx, models.AssetKey("AAPL"), payload("asset"), 24*time.Hour)

		_, err := b.c.Get(ctx, models.PortfolioKey("AAPL"))
		if !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("%s: expected miss for portfolio kind, got %v", b.name, err)
		}
		if _, err := b.c.Get(ctx, models.AssetKey("AAPL")); err != nil {
			t.Fatalf("%s: asset lookup: %v", b.name, err)
		}
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	for _, b := range backends(clk) {
		key := models.PortfolioKey("p-" + b.name)
		e, _ := b.c.Put(ctx, key, payload("x"), time.Hour)
		if !e.ExpiresAt.Equal(e.GeneratedAt.Add(time.Hour)) {
			t.Fatalf("%s: expires_at %v", b.name, e.ExpiresAt)
		}
		clk.Advance(59 * time.Minute)
		if _, err := b.c.Get(ctx, key); err != nil {
			t.Fatalf("%s: expected hit before expiry: %v", b.name, err)
		}
		clk.Advance(time.Minute)
		if _, err := b.c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("%s: expected miss at expiry, got %v", b.name, err)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(newClock()) {
		e, _ := b.c.Put(ctx, models.AssetKey("MSFT"), payload("x"), 0)
		if got := e.ExpiresAt.Sub(e.GeneratedAt); got != DefaultTTL {
			t.Fatalf("%s: ttl %v", b.name, got)
		}
	}
}

func TestLastWriterWinsAndInvalidate(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(newClock()) {
		key := models.AssetKey("TSLA")
		_, _ = b.c.Put(ctx, key, payload("first"), time.Hour)
		_, _ = b.c.Put(ctx, key, payload("second"), time.Hour)
		e, err := b.c.Get(ctx, key)
		if err != nil || e.Payload.Narrative != "second" {
			t.Fatalf("%s: got %+v %v", b.name, e, err)
		}
		if err := b.c.Invalidate(ctx, key); err != nil {
			t.Fatalf("%s: invalidate: %v", b.name, err)
		}
		if _, err := b.c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("%s: expected miss after invalidate", b.name)
		}
	}
}

func TestInvalidateKind(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(newClock()) {
		_, _ = b.c.Put(ctx, models.AssetKey("A"), payload("a"), time.Hour)
		_, _ = b.c.Put(ctx, models.AssetKey("B"), payload("b"), time.Hour)
		_, _ = b.c.Put(ctx, models.PortfolioKey("A"), payload("p"), time.Hour)

		if err := b.c.InvalidateKind(ctx, models.ScopeAsset); err != nil {
			t.Fatalf("%s: %v", b.name, err)
		}
		if _, err := b.c.Get(ctx, models.AssetKey("A")); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("%s: asset A should be gone", b.name)
		}
		if _, err := b.c.Get(ctx, models.PortfolioKey("A")); err != nil {
			t.Fatalf("%s: portfolio A should remain: %v", b.name, err)
		}
	}
}

func TestServiceCacheRejectsForeignEntry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0), pkgcache.WithMemoryClock(clk.Now))
	c := NewServiceAnalysisCache(store, WithServiceClock(clk.Now))

	foreign := newEntry(models.AssetKey("X1"), payload("asset"), time.Hour, clk.Now())
	if err := store.Set(ctx, models.PortfolioKey("X1").String(), foreign, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := c.Get(ctx, models.PortfolioKey("X1")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss for entry stored with another kind, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAnalysisCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := models.AssetKey(fmt.Sprintf("S%d", i%4))
			for j := 0; j < 100; j++ {
				_, _ = c.Put(ctx, key, payload("x"), time.Hour)
				_, _ = c.Get(ctx, key)
				if j%10 == 0 {
					_ = c.Invalidate(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestScopeKeyString(t *testing.T) {
	if got := models.AssetKey("aapl").String(); got != "analysis:ASSET:AAPL" {
		t.Fatalf("got %s", got)
	}
	if got := models.PortfolioKey("42").String(); got != "analysis:PORTFOLIO:42" {
		t.Fatalf("got %s", got)
	}
}

func TestMemoryCacheMaxEntriesEvictsOldest(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewMemoryAnalysisCache(WithClock(clk.Now), WithMaxEntries(2))

	_, _ = c.Put(ctx, models.AssetKey("A"), payload("a"), time.Hour)
	clk.Advance(time.Minute)
	_, _ = c.Put(ctx, models.AssetKey("B"), payload("b"), time.Hour)
	clk.Advance(time.Minute)
	_, _ = c.Put(ctx, models.AssetKey("C"), payload("c"), time.Hour)

	if _, err := c.Get(ctx, models.AssetKey("A")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("oldest entry should be evicted, got %v", err)
	}
	for _, s := range []string{"B", "C"} {
		if _, err := c.Get(ctx, models.AssetKey(s)); err != nil {
			t.Fatalf("%s should remain: %v", s, err)
		}
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewMemoryAnalysisCache(WithClock(clk.Now))
	key := models.PortfolioKey("p1")

	if ok, _ := c.TryLock(ctx, key, time.Minute); !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := c.TryLock(ctx, key, time.Minute); ok {
		t.Fatalf("second lock should fail")
	}
	clk.Advance(2 * time.Minute)
	if ok, _ := c.TryLock(ctx, key, time.Minute); !ok {
		t.Fatalf("expired lock should be granted again")
	}
	_ = c.Unlock(ctx, key)
	if ok, _ := c.TryLock(ctx, key, time.Minute); !ok {
		t.Fatalf("lock after unlock should succeed")
	}
}
