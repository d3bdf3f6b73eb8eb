// Package redis connects to Redis with go-redis/v9. The client backs the
// Redis analytics store and the shared cache layer.
//
//	client, err := redis.Connect(ctx, cfg)
//	store := analytics.NewRedisStore(client, analytics.WithKeyPrefix(cfg.KeyPrefix))
package redis
