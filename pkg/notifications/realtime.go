package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// Subscription receives realtime notifications for one recipient.
type Subscription struct {
	ch     chan Notification
	closed bool
	mu     sync.RWMutex
}

// C returns the receive channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Close ends the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send never blocks: a full buffer drops the message for this subscriber.
func (s *Subscription) send(n Notification) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}

type stream struct {
	subs map[*Subscription]struct{}
	mu   sync.Mutex
}

func (st *stream) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for sub := range st.subs {
		_ = sub.Close()
	}
	clear(st.subs)
}

// Realtime fans notifications out to open SSE/WebSocket connections.
// Each recipient gets one stream; the number of streams is bounded by an
// LRU so idle recipients do not pin memory.
type Realtime struct {
	streams    *cache.LRUCache[string, *stream]
	bufferSize int
	maxStreams int
	logger     *slog.Logger
	mu         sync.Mutex
}

// RealtimeOption configures Realtime.
type RealtimeOption func(*Realtime)

// WithRealtimeLogger sets the logger for Realtime.
func WithRealtimeLogger(l *slog.Logger) RealtimeOption {
	return func(r *Realtime) {
		r.logger = l
	}
}

// WithMaxStreams bounds the number of recipient streams kept in memory.
// Default is 10,000.
func WithMaxStreams(limit int) RealtimeOption {
	return func(r *Realtime) {
		if limit > 0 {
			r.maxStreams = limit
		}
	}
}

// NewRealtime creates a realtime fan-out with the given per-subscriber buffer.
func NewRealtime(bufferSize int, opts ...RealtimeOption) *Realtime {
	r := &Realtime{
		bufferSize: max(bufferSize, 1),
		maxStreams: 10000,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.streams = cache.NewLRUCache[string, *stream](r.maxStreams)
	r.streams.SetEvictCallback(func(_ string, st *stream) {
		st.closeAll()
	})
	return r
}

func (r *Realtime) streamFor(recipientID string) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams.Get(recipientID)
	if !ok {
		st = &stream{subs: make(map[*Subscription]struct{})}
		r.streams.Put(recipientID, st)
	}
	return st
}

// Subscribe opens a subscription for a recipient. It is closed when ctx is
// cancelled or the stream is evicted.
func (r *Realtime) Subscribe(ctx context.Context, recipientID string) *Subscription {
	st := r.streamFor(recipientID)
	sub := &Subscription{ch: make(chan Notification, r.bufferSize)}

	st.mu.Lock()
	st.subs[sub] = struct{}{}
	st.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			st.mu.Lock()
			delete(st.subs, sub)
			st.mu.Unlock()
			_ = sub.Close()
		}()
	}
	return sub
}

// Publish pushes a notification to every open subscription of its recipient.
// Slow subscribers lose the message rather than blocking the publisher.
func (r *Realtime) Publish(ctx context.Context, n Notification) int {
	st := r.streamFor(n.RecipientID)

	st.mu.Lock()
	defer st.mu.Unlock()
	delivered := 0
	for sub := range st.subs {
		if sub.send(n) {
			delivered++
		}
	}
	return delivered
}

// Deliver implements Sender for the sse and ws channels. A recipient with no
// open connection is reported as skipped, not failed.
func (r *Realtime) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	n := Notification{
		ID:          msg.NotificationID,
		RecipientID: msg.Address,
		TenantID:    msg.TenantID,
		EventKey:    msg.EventKey,
		Channel:     msg.Channel,
		Title:       msg.Content.Title,
		Message:     msg.Content.Text,
		HTML:        msg.Content.HTML,
		CreatedAt:   time.Now(),
	}
	status := StatusDelivered
	if r.Publish(ctx, n) == 0 {
		status = StatusSkipped
	}
	return DeliveryResult{Status: status, At: n.CreatedAt}, nil
}

// Close closes every stream and subscription.
func (r *Realtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams.Clear()
	return nil
}
