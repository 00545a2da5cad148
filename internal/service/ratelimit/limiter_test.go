package ratelimit

import (
	"testing"
	"time"
)

func TestAllowPerKey(t *testing.T) {
	now := time.Unix(0, 0)
	l := New()
	l.now = func() time.Time { return now }

	if !l.Allow("AAPL", 1, 0.5) {
		t.Fatalf("first call must pass")
	}
	if l.Allow("AAPL", 1, 0.5) {
		t.Fatalf("second call within the window must be throttled")
	}
	if !l.Allow("MSFT", 1, 0.5) {
		t.Fatalf("keys must not share buckets")
	}
	now = now.Add(2 * time.Second)
	if !l.Allow("AAPL", 1, 0.5) {
		t.Fatalf("bucket must refill after 2s")
	}
	now = now.Add(time.Hour)
	l.Allow("AAPL", 1, 0.5)
	if l.Allow("AAPL", 1, 0.5) {
		t.Fatalf("refill must be capped at capacity")
	}
}

func TestIdleKeysAreForgotten(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New()
	l.now = func() time.Time { return now }

	l.Allow("AAPL", 1, 1)
	l.Allow("MSFT", 1, 1)
	now = now.Add(defaultIdle + time.Second)
	l.Allow("AAPL", 1, 1)
	if l.Len() != 1 {
		t.Fatalf("idle key must be evicted, tracking %d", l.Len())
	}
}
