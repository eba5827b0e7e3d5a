package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"VCPScanner/internal/model"
)

// CachingProvider memoises History responses for ttl. Snapshots always go upstream.
type CachingProvider struct {
	next  Provider
	cache *cache.Cache
}

// NewCachingProvider wraps next with a history cache.
func NewCachingProvider(next Provider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachingProvider) Name() string { return c.next.Name() }

func (c *CachingProvider) Snapshot(ctx context.Context) ([]model.SnapshotRow, error) {
	return c.next.Snapshot(ctx)
}

func (c *CachingProvider) History(ctx context.Context, code string, days int) ([]model.Bar, error) {
	key := fmt.Sprintf("%s:%d", code, days)
	if v, ok := c.cache.Get(key); ok {
		return v.([]model.Bar), nil
	}
	bars, err := c.next.History(ctx, code, days)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, bars)
	return bars, nil
}
