// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdle = 10 * time.Minute

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter hands out golang.org/x/time/rate buckets keyed by string and
// forgets keys idle for longer than the idle window.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry), idle: defaultIdle, now: time.Now}
}

// Allow takes one token from key's bucket. A new bucket starts full with
// capacity burst (at least 1) and refills at perSecond.
func (l *Limiter) Allow(key string, burst, perSecond float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		size := int(burst)
		if size < 1 {
			size = 1
		}
		e = &entry{lim: rate.NewLimiter(rate.Limit(perSecond), size)}
		l.entries[key] = e
	}
	e.seen = now
	l.sweep(now)
	return e.lim.AllowN(now, 1)
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for k, e := range l.entries {
		if now.Sub(e.seen) > l.idle {
			delete(l.entries, k)
		}
	}
}
