// Package ratelimiter throttles inbound notification events with a token
// bucket per key, usually the tenant ID or the client IP.
//
// A Bucket holds Capacity tokens and adds RefillRate tokens every
// RefillInterval. Denied requests do not consume tokens. MemoryStore keeps
// buckets in-process; RedisStore shares them between replicas through a
// single Lua script so refill and consume happen atomically.
//
// Middleware answers throttled requests with 429 and the standard
// X-RateLimit-* and Retry-After headers. When the store fails the request is
// let through and the failure is logged.
package ratelimiter
