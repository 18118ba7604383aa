package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/model"
)

// CacheStore persists discovery results keyed by search URL.
type CacheStore interface {
	GetCachedDiscovery(ctx context.Context, searchURL string) (*model.DiscoveryCache, error)
	SetCachedDiscovery(ctx context.Context, searchURL string, listings []model.DiscoveredListing, ttl time.Duration) error
}

// CachedSource serves discovery results from the store while they are
// fresh and falls through to the wrapped Source otherwise. Empty results are
// not cached.
type CachedSource struct {
	source Source
	store  CacheStore
	ttl    time.Duration
}

// NewCachedSource wraps source with a TTL cache. A non-positive ttl disables
// caching.
func NewCachedSource(source Source, store CacheStore, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, store: store, ttl: ttl}
}

// DiscoverListings implements Source.
func (c *CachedSource) DiscoverListings(ctx context.Context, searchURL string) ([]model.DiscoveredListing, error) {
	if c.ttl <= 0 {
		return c.source.DiscoverListings(ctx, searchURL)
	}

	log := zap.L().With(zap.String("search_url", searchURL))

	cached, err := c.store.GetCachedDiscovery(ctx, searchURL)
	if err != nil {
		log.Warn("discovery: cache lookup failed", zap.Error(err))
	} else if cached != nil {
		log.Debug("discovery: cache hit",
			zap.Int("listings", len(cached.Listings)),
			zap.Time("expires_at", cached.ExpiresAt),
		)
		return cached.Listings, nil
	}

	found, err := c.source.DiscoverListings(ctx, searchURL)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: discover %s", searchURL)
	}
	if len(found) == 0 {
		return found, nil
	}
	if err := c.store.SetCachedDiscovery(ctx, searchURL, found, c.ttl); err != nil {
		log.Warn("discovery: cache write failed", zap.Error(err))
	}
	return found, nil
}
