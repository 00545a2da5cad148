package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clk.Now))
	defer mc.Close()

	if err := mc.Set(ctx, "a", item{Name: "x", Count: 2}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got item
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "x" || got.Count != 2 {
		t.Fatalf("unexpected %+v", got)
	}

	clk.Advance(time.Minute)
	if err := mc.Get(ctx, "a", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss at expiry, got %v", err)
	}
}

func TestMemoryCacheStrings(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	_ = mc.Set(ctx, "s", "plain", time.Minute)
	var s string
	if err := mc.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("got %q %v", s, err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	for _, k := range []string{"analysis:ASSET:AAPL", "analysis:ASSET:MSFT", "analysis:PORTFOLIO:1"} {
		_ = mc.Set(ctx, k, "v", time.Hour)
	}
	if err := mc.DeleteByPattern(ctx, "analysis:ASSET:*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := mc.Exists(ctx, "analysis:ASSET:AAPL", "analysis:ASSET:MSFT"); ok {
		t.Fatalf("asset keys should be gone")
	}
	if ok, _ := mc.Exists(ctx, "analysis:PORTFOLIO:1"); !ok {
		t.Fatalf("portfolio key should remain")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(clk.Now))
	defer mc.Close()

	_ = mc.Set(ctx, "a", "1", time.Hour)
	clk.Advance(time.Second)
	_ = mc.Set(ctx, "b", "2", time.Hour)
	clk.Advance(time.Second)
	var s string
	_ = mc.Get(ctx, "a", &s)
	clk.Advance(time.Second)
	_ = mc.Set(ctx, "c", "3", time.Hour)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should be evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok || mc.Len() != 2 {
		t.Fatalf("unexpected contents, len %d", mc.Len())
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "lock", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); ok {
		t.Fatalf("second lock should fail")
	}
	_ = mc.Unlock(ctx, "lock")
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("lock after unlock should succeed")
	}
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, WithLayeredL1TTL(time.Minute))
	defer lc.Close()

	_ = l2.Set(ctx, "k", item{Name: "from-l2"}, time.Hour)
	var got item
	if err := lc.Get(ctx, "k", &got); err != nil || got.Name != "from-l2" {
		t.Fatalf("read-through: %+v %v", got, err)
	}

	if err := lc.Set(ctx, "k2", item{Name: "both"}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, _ := l2.Exists(ctx, "k2"); !ok {
		t.Fatalf("write-through missing in l2")
	}

	_ = lc.Delete(ctx, "k2")
	if err := lc.Get(ctx, "k2", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
