// Package tenant models the tenant directory as seen by notification
// dispatch: active flag, languages, per-channel overrides and the channels
// used for critical fallback.
//
// Provider is the lookup contract. MemoryProvider serves tests and small
// deployments (LoadYAML seeds it from a file); CachedProvider fronts a
// remote directory with an LRU cache.
package tenant
