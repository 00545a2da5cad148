// Package cache stores generated analyses keyed by (kind, id).
package cache

import (
	"context"
	"time"

	"FinFolio/internal/domain/models"
	pkgcache "FinFolio/pkg/cache"
)

// DefaultTTL is used when Put receives a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// ErrCacheMiss is the normal outcome of a lookup without a valid entry.
var ErrCacheMiss = pkgcache.ErrCacheMiss

// AnalysisCache holds at most one valid entry per ScopeKey. Concurrent writers
// are allowed; the last Put wins.
type AnalysisCache interface {
	Get(ctx context.Context, key models.ScopeKey) (*models.CacheEntry, error)
	Put(ctx context.Context, key models.ScopeKey, payload models.AnalysisPayload, ttl time.Duration) (*models.CacheEntry, error)
	Invalidate(ctx context.Context, key models.ScopeKey) error
	InvalidateKind(ctx context.Context, kind models.ScopeKind) error
}

func newEntry(key models.ScopeKey, payload models.AnalysisPayload, ttl time.Duration, now time.Time) *models.CacheEntry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &models.CacheEntry{
		Scope:       key,
		Payload:     payload,
		GeneratedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// matches rejects entries stored under a different scope than requested.
func matches(e *models.CacheEntry, key models.ScopeKey) bool {
	return e != nil && e.Scope.Kind == key.Kind && e.Scope.ID == key.ID
}

func kindPattern(kind models.ScopeKind) string {
	return "analysis:" + string(kind) + ":*"
}
