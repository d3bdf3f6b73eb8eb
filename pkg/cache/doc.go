// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry TTL.
//
// The cache evicts the least recently used entry once capacity is exceeded.
// With WithTTL, entries also expire a fixed duration after their last write;
// expired entries are dropped lazily on Get or eagerly with Purge.
//
//	stats := cache.NewLRUCache[string, Stats](1024, cache.WithTTL(5*time.Minute))
//	s, err := stats.GetOrLoad(ctx, key, func(ctx context.Context) (Stats, error) {
//		return store.Load(ctx, key)
//	})
//
// GetOrLoad implements cache-aside: concurrent misses for the same key share
// a single load, and failed loads are not cached.
//
// An evict callback runs for every entry that leaves the cache, which makes
// the cache usable as a bounded registry of closable resources:
//
//	streams := cache.NewLRUCache[string, *stream](10000)
//	streams.SetEvictCallback(func(_ string, s *stream) { s.closeAll() })
package cache
