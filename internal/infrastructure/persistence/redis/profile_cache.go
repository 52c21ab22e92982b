package redis

import (
	"context"
	"errors"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCache keeps recently fetched HEMIS profiles for a short TTL so
// the portal does not hit the external API on every page load. A nil or
// disabled cache degrades to fetching directly.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewProfileCache creates a ProfileCache. Pass a nil cache to disable
// caching entirely.
func NewProfileCache(cache *Cache, ttl time.Duration, log *logger.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{cache: cache, ttl: ttl, log: log}
}

// Get returns the cached profile for the user, or ErrCacheMiss.
func (p *ProfileCache) Get(ctx context.Context, userID string) (*hemis.Profile, error) {
	if p == nil || p.cache == nil {
		return nil, ErrCacheMiss
	}

	var profile hemis.Profile
	err := p.cache.Get(ctx, ProfileKey(userID), &profile)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) && p.log != nil {
			p.log.Warn("profile cache read failed", logger.UserID(userID), logger.Err(err))
		}
		return nil, ErrCacheMiss
	}
	return &profile, nil
}

// Put stores the profile. Cache write failures are logged, never fatal.
func (p *ProfileCache) Put(ctx context.Context, userID string, profile *hemis.Profile) {
	if p == nil || p.cache == nil || profile == nil {
		return
	}

	if err := p.cache.Set(ctx, ProfileKey(userID), profile, p.ttl); err != nil && p.log != nil {
		p.log.Warn("profile cache write failed", logger.UserID(userID), logger.Err(err))
	}
}

// Invalidate drops the cached profile, e.g. after a fresh sync.
func (p *ProfileCache) Invalidate(ctx context.Context, userID string) {
	if p == nil || p.cache == nil {
		return
	}

	if err := p.cache.Delete(ctx, ProfileKey(userID)); err != nil && p.log != nil {
		p.log.Warn("profile cache invalidate failed", logger.UserID(userID), logger.Err(err))
	}
}
