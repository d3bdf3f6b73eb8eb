package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Inbox is the in-app channel: it persists notifications for later reading
// and pushes them to open realtime connections.
type Inbox struct {
	storage  Storage
	realtime *Realtime
	logger   *slog.Logger
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger for the Inbox.
func WithInboxLogger(l *slog.Logger) InboxOption {
	return func(i *Inbox) {
		i.logger = l
	}
}

// WithInboxRealtime pushes stored notifications to open connections.
func WithInboxRealtime(rt *Realtime) InboxOption {
	return func(i *Inbox) {
		i.realtime = rt
	}
}

// NewInbox creates an in-app inbox on top of storage.
func NewInbox(storage Storage, opts ...InboxOption) *Inbox {
	i := &Inbox{
		storage: storage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Send stores the notification, then pushes it to realtime subscribers.
// Realtime push is best effort; the stored copy is the source of truth.
func (i *Inbox) Send(ctx context.Context, notif Notification) (Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}
	if err := i.storage.Create(ctx, notif); err != nil {
		return notif, fmt.Errorf("failed to store notification: %w", err)
	}
	if i.realtime != nil {
		i.realtime.Publish(ctx, notif)
	}
	return notif, nil
}

// Deliver implements Sender for the in_app channel.
func (i *Inbox) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	n, err := i.Send(ctx, Notification{
		ID:          msg.NotificationID,
		RecipientID: msg.Address,
		TenantID:    msg.TenantID,
		EventKey:    msg.EventKey,
		Channel:     ChannelInApp,
		Title:       msg.Content.Title,
		Message:     msg.Content.Text,
		HTML:        msg.Content.HTML,
	})
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Status: StatusDelivered, ProviderID: n.ID, At: n.CreatedAt}, nil
}

func (i *Inbox) Get(ctx context.Context, recipientID, notifID string) (*Notification, error) {
	return i.storage.Get(ctx, recipientID, notifID)
}

func (i *Inbox) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	return i.storage.List(ctx, recipientID, opts)
}

func (i *Inbox) MarkRead(ctx context.Context, recipientID string, notifIDs ...string) error {
	return i.storage.MarkRead(ctx, recipientID, notifIDs...)
}

// MarkAllRead marks every unread notification of a recipient as read.
func (i *Inbox) MarkAllRead(ctx context.Context, recipientID string) error {
	unread, err := i.storage.List(ctx, recipientID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}
	ids := make([]string, len(unread))
	for k, n := range unread {
		ids[k] = n.ID
	}
	return i.storage.MarkRead(ctx, recipientID, ids...)
}

func (i *Inbox) Delete(ctx context.Context, recipientID string, notifIDs ...string) error {
	return i.storage.Delete(ctx, recipientID, notifIDs...)
}

func (i *Inbox) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return i.storage.CountUnread(ctx, recipientID)
}
