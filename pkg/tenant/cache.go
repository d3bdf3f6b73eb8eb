package tenant

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// CachedProvider fronts a slow Provider with an LRU+TTL cache.
// Lookup failures are not cached.
type CachedProvider struct {
	next  Provider
	cache *cache.LRUCache[string, *Tenant]
}

// NewCachedProvider caches up to size tenants for ttl.
func NewCachedProvider(next Provider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 1000
	}
	return &CachedProvider{
		next:  next,
		cache: cache.NewLRUCache[string, *Tenant](size, cache.WithTTL(ttl)),
	}
}

func (p *CachedProvider) Get(ctx context.Context, id string) (*Tenant, error) {
	t, err := p.cache.GetOrLoad(ctx, id, func(ctx context.Context) (*Tenant, error) {
		return p.next.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return clone(t), nil
}

// Invalidate drops a cached tenant after a directory change.
func (p *CachedProvider) Invalidate(id string) {
	p.cache.Remove(id)
}
