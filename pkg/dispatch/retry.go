package dispatch

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Stage tells where a notification failed.
type Stage string

const (
	StageRender  Stage = "render"
	StageDeliver Stage = "deliver"
)

// RetryItem is one failed member of a flushed digest batch, or one failed
// immediate delivery. The digest scheduler never reopens a batch; retrying
// is up to whoever consumes the queue.
type RetryItem struct {
	ID             string                `json:"id"`
	BatchID        string                `json:"batch_id,omitempty"`
	NotificationID string                `json:"notification_id"`
	RecipientID    string                `json:"recipient_id"`
	TenantID       string                `json:"tenant_id,omitempty"`
	EventKey       string                `json:"event_key"`
	Channel        notifications.Channel `json:"channel"`
	Stage          Stage                 `json:"stage"`
	Error          string                `json:"error"`
	FailedAt       time.Time             `json:"failed_at"`
}

// RetryQueue receives failed deliveries.
type RetryQueue interface {
	Push(ctx context.Context, items ...RetryItem) error
}

// MemoryRetryQueue keeps failed items in memory. It is meant for tests and
// single-process deployments.
type MemoryRetryQueue struct {
	mu    sync.Mutex
	items []RetryItem
}

func NewMemoryRetryQueue() *MemoryRetryQueue {
	return &MemoryRetryQueue{}
}

func (q *MemoryRetryQueue) Push(_ context.Context, items ...RetryItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return nil
}

// Items returns a copy of the queued items in push order.
func (q *MemoryRetryQueue) Items() []RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Drain removes and returns every queued item.
func (q *MemoryRetryQueue) Drain() []RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *MemoryRetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
