package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Message is what a transport receives: where to send and what to send.
type Message struct {
	NotificationID string
	RecipientID    string
	TenantID       string
	EventKey       string
	Channel        Channel
	Address        string
	Content        Content
}

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusSkipped   DeliveryStatus = "skipped"
)

// DeliveryResult describes what happened to one Message.
type DeliveryResult struct {
	NotificationID string         `json:"notification_id"`
	RecipientID    string         `json:"recipient_id"`
	TenantID       string         `json:"tenant_id,omitempty"`
	EventKey       string         `json:"event_key"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	ProviderID     string         `json:"provider_id,omitempty"`
	Error          string         `json:"error,omitempty"`
	Duration       time.Duration  `json:"duration"`
	At             time.Time      `json:"at"`
}

// Sender is the per-channel transport capability.
type Sender interface {
	Deliver(ctx context.Context, msg Message) (DeliveryResult, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) (DeliveryResult, error)

func (f SenderFunc) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	return f(ctx, msg)
}

// DeliveryLog persists delivery outcomes for inspection.
type DeliveryLog interface {
	Record(ctx context.Context, result DeliveryResult) error
}

// Router routes messages to the sender registered for their channel.
// It is safe for concurrent use.
type Router struct {
	senders map[Channel]Sender
	log     DeliveryLog
	logger  *slog.Logger
	mu      sync.RWMutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for the Router.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithDeliveryLog records every delivery result to the given log.
func WithDeliveryLog(log DeliveryLog) RouterOption {
	return func(r *Router) {
		r.log = log
	}
}

// WithSender registers a sender for one or more channels.
func WithSender(s Sender, channels ...Channel) RouterOption {
	return func(r *Router) {
		for _, c := range channels {
			r.senders[c] = s
		}
	}
}

// NewRouter creates a channel router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		senders: make(map[Channel]Sender),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the sender for a channel.
func (r *Router) Register(c Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[c] = s
}

// Channels returns the channels that have a sender.
func (r *Router) Channels() ChannelSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(ChannelSet, len(r.senders))
	for c := range r.senders {
		set[c] = struct{}{}
	}
	return set
}

// Deliver sends the message through the channel's sender. The returned
// result is always populated, even on error.
func (r *Router) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	r.mu.RLock()
	s, ok := r.senders[msg.Channel]
	r.mu.RUnlock()

	base := DeliveryResult{
		NotificationID: msg.NotificationID,
		RecipientID:    msg.RecipientID,
		TenantID:       msg.TenantID,
		EventKey:       msg.EventKey,
		Channel:        msg.Channel,
		At:             time.Now(),
	}

	if !ok {
		base.Status = StatusSkipped
		base.Error = ErrNoSender.Error()
		r.record(ctx, base)
		return base, fmt.Errorf("%w: %s", ErrNoSender, msg.Channel)
	}
	if msg.Address == "" {
		base.Status = StatusSkipped
		base.Error = ErrNoAddress.Error()
		r.record(ctx, base)
		return base, fmt.Errorf("%w: %s", ErrNoAddress, msg.Channel)
	}

	start := time.Now()
	res, err := s.Deliver(ctx, msg)
	res.NotificationID = base.NotificationID
	res.RecipientID = base.RecipientID
	res.TenantID = base.TenantID
	res.EventKey = base.EventKey
	res.Channel = base.Channel
	res.Duration = time.Since(start)
	if res.At.IsZero() {
		res.At = base.At
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		r.logger.LogAttrs(ctx, slog.LevelWarn, "delivery failed",
			slog.String("notification_id", msg.NotificationID),
			logger.UserID(msg.RecipientID),
			logger.Channel(string(msg.Channel)),
			logger.EventKey(msg.EventKey),
			logger.Error(err),
		)
		r.record(ctx, res)
		return res, errors.Join(ErrDeliveryFailed, err)
	}
	if res.Status == "" {
		res.Status = StatusDelivered
	}
	r.record(ctx, res)
	return res, nil
}

// record is best effort: a failing log never fails a delivery.
func (r *Router) record(ctx context.Context, res DeliveryResult) {
	if r.log == nil {
		return
	}
	if err := r.log.Record(ctx, res); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record delivery result",
			slog.String("notification_id", res.NotificationID),
			logger.Error(err),
		)
	}
}

// NoOpSender accepts every message and does nothing.
// Useful for testing or for channels that are intentionally disabled.
type NoOpSender struct{}

func (NoOpSender) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	return DeliveryResult{Status: StatusDelivered, At: time.Now()}, nil
}
