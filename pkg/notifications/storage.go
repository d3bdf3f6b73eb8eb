package notifications

import (
	"context"
	"time"
)

// Storage persists in-app notifications so recipients can read them later.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, recipientID, notifID string) (*Notification, error)

	// List returns notifications for a recipient, newest first.
	List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks notification(s) as read.
	MarkRead(ctx context.Context, recipientID string, notifIDs ...string) error

	// Delete removes notification(s).
	Delete(ctx context.Context, recipientID string, notifIDs ...string) error

	// CountUnread returns unread count for a recipient.
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int        // Maximum number of notifications to return (0 = no limit)
	Offset     int        // Number of notifications to skip for pagination
	OnlyUnread bool       // When true, only return unread notifications
	EventKeys  []string   // If specified, only return notifications for these events
	Since      *time.Time // If specified, only return notifications created after this time
}
