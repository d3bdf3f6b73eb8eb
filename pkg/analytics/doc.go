// Package analytics accumulates render and engagement counters per event,
// template type, channel, tenant and locale, both cumulatively and per
// hour, and serves rolled-up statistics.
//
// Increments are atomic in every Store: MemoryStore under a mutex,
// RedisStore with HINCRBY in a MULTI block and PostgresStore with additive
// upserts. Counters may double count when callers retry a delivery.
//
// GetStats and TopTemplates results are cached per query for a short TTL
// (five minutes by default). Writes do not invalidate the cache.
package analytics
