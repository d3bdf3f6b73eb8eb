package digest

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Key identifies the open batch a notification joins.
type Key struct {
	TenantID string `json:"tenant_id,omitempty"`
	GroupKey string `json:"group_key"`
	EventKey string `json:"event_key"`
}

// State of a batch.
type State string

const (
	StateOpen     State = "open"
	StateFlushing State = "flushing"
)

// Batch is an immutable snapshot of a digest batch.
type Batch struct {
	ID       string                       `json:"id"`
	Key      Key                          `json:"key"`
	State    State                        `json:"state"`
	OpenedAt time.Time                    `json:"opened_at"`
	Deadline time.Time                    `json:"deadline"`
	Members  []notifications.Notification `json:"members"`
}

// Len returns the number of members.
func (b Batch) Len() int { return len(b.Members) }

// Ticket tells the caller which batch a notification joined.
type Ticket struct {
	BatchID  string    `json:"batch_id"`
	Position int       `json:"position"`
	Deadline time.Time `json:"deadline"`
}

type batch struct {
	id       string
	key      Key
	openedAt time.Time
	deadline time.Time
	members  []notifications.Notification
	flushed  atomic.Bool
}

// snapshot must be called with the scheduler lock held.
func (b *batch) snapshot() Batch {
	state := StateOpen
	if b.flushed.Load() {
		state = StateFlushing
	}
	return Batch{
		ID:       b.id,
		Key:      b.key,
		State:    state,
		OpenedAt: b.openedAt,
		Deadline: b.deadline,
		Members:  slices.Clone(b.members),
	}
}
