// Package cache adds a short-TTL response cache in front of the
// Overpass fetcher. Overlapping viewports from many browser tabs would
// otherwise hammer the upstream with near-identical bounded queries.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mkalvans/facilitymap/internal/cache/keys"
	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/core/observability"
)

// Store is the narrow backend contract both the Redis and the
// in-process LRU backends satisfy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Fetcher matches vsync.Fetcher; declared locally to keep the
// dependency arrow pointing at cache.
type Fetcher interface {
	Fetch(ctx context.Context, layer model.LayerKind, v model.Viewport) ([]model.Facility, error)
}

// Templater supplies the query template a key is derived from.
type Templater func(layer model.LayerKind) string

// CachingFetcher wraps an inner fetcher with a Store. Cache failures
// are logged and ignored: a broken cache degrades to direct fetches,
// never to request failures.
type CachingFetcher struct {
	inner    Fetcher
	store    Store
	logger   *slog.Logger
	ttl      time.Duration
	res      int
	template Templater
}

func NewCachingFetcher(inner Fetcher, store Store, logger *slog.Logger, ttl time.Duration, res int, template Templater) *CachingFetcher {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingFetcher{
		inner:    inner,
		store:    store,
		logger:   logger,
		ttl:      ttl,
		res:      res,
		template: template,
	}
}

func (c *CachingFetcher) Fetch(ctx context.Context, layer model.LayerKind, v model.Viewport) ([]model.Facility, error) {
	key := keys.Key(layer, v, c.res, c.template(layer))

	if b, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("cache get failed", "key", key, "err", err)
	} else if ok {
		var facilities []model.Facility
		if err := json.Unmarshal(b, &facilities); err == nil {
			observability.IncCacheHit()
			return facilities, nil
		}
		c.logger.Warn("cache entry corrupt, refetching", "key", key)
	}
	observability.IncCacheMiss()

	facilities, err := c.inner.Fetch(ctx, layer, v)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(facilities); err == nil {
		if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn("cache set failed", "key", key, "err", err)
		}
	}
	return facilities, nil
}
