package analytics

import (
	"context"
	"time"
)

// Increment is one atomic change to a row and its hourly bucket.
type Increment struct {
	Key  Key
	Hour time.Time
	Counters
}

// Store persists counters. Implementations apply each Increment
// atomically to both the cumulative row and the hourly row.
type Store interface {
	Increment(ctx context.Context, inc Increment) error

	// Usage returns cumulative rows. Empty eventKey or tenantID match all.
	Usage(ctx context.Context, eventKey, tenantID string) ([]Row, error)

	// Hourly returns hourly rows with Hour >= since.
	Hourly(ctx context.Context, eventKey, tenantID string, since time.Time) ([]Row, error)
}

func matches(k Key, eventKey, tenantID string) bool {
	return (eventKey == "" || k.EventKey == eventKey) && (tenantID == "" || k.TenantID == tenantID)
}
