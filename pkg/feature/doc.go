// Package feature provides feature flags evaluated per recipient and tenant.
//
// The notification engine uses flags as operational kill switches and for
// percentage rollouts. Bucket is the shared stable hash: the same id and
// salt always land in the same bucket in [0, 100), which makes rollouts and
// A/B assignments sticky without storing anything.
//
//	flags, _ := feature.NewMemoryProvider(&feature.Flag{
//	    Name:    "notifications.kill.order.shipped",
//	    Enabled: true,
//	})
//	killed, err := flags.IsEnabled(ctx, "notifications.kill.order.shipped", feature.Subject{})
//
// ParseFlags loads flag definitions from YAML so switches can ship with
// deployment config.
package feature
