package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type recordingLog struct {
	mu      sync.Mutex
	results []notifications.DeliveryResult
	err     error
}

func (l *recordingLog) Record(_ context.Context, r notifications.DeliveryResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	return l.err
}

func msgFor(c notifications.Channel, addr string) notifications.Message {
	return notifications.Message{
		NotificationID: "n1",
		RecipientID:    "u1",
		TenantID:       "t1",
		EventKey:       "order.shipped",
		Channel:        c,
		Address:        addr,
		Content:        notifications.Content{Title: "Shipped", Text: "on its way"},
	}
}

func TestRouter_Deliver(t *testing.T) {
	t.Parallel()

	t.Run("routes by channel and fills ids", func(t *testing.T) {
		t.Parallel()

		var got notifications.Message
		log := &recordingLog{}
		r := notifications.NewRouter(
			notifications.WithDeliveryLog(log),
			notifications.WithSender(notifications.SenderFunc(func(_ context.Context, m notifications.Message) (notifications.DeliveryResult, error) {
				got = m
				return notifications.DeliveryResult{ProviderID: "p-1"}, nil
			}), notifications.ChannelEmail, notifications.ChannelSMS),
		)

		res, err := r.Deliver(context.Background(), msgFor(notifications.ChannelSMS, "+100"))
		require.NoError(t, err)
		assert.Equal(t, "+100", got.Address)
		assert.Equal(t, notifications.StatusDelivered, res.Status)
		assert.Equal(t, "p-1", res.ProviderID)
		assert.Equal(t, "n1", res.NotificationID)
		assert.Equal(t, notifications.ChannelSMS, res.Channel)
		assert.False(t, res.At.IsZero())
		require.Len(t, log.results, 1)
		assert.Equal(t, res, log.results[0])
	})

	t.Run("missing sender is skipped", func(t *testing.T) {
		t.Parallel()

		log := &recordingLog{}
		r := notifications.NewRouter(notifications.WithDeliveryLog(log))
		res, err := r.Deliver(context.Background(), msgFor(notifications.ChannelPush, "tok"))
		assert.ErrorIs(t, err, notifications.ErrNoSender)
		assert.Equal(t, notifications.StatusSkipped, res.Status)
		require.Len(t, log.results, 1)
	})

	t.Run("missing address is skipped", func(t *testing.T) {
		t.Parallel()

		r := notifications.NewRouter(notifications.WithSender(notifications.NoOpSender{}, notifications.ChannelEmail))
		res, err := r.Deliver(context.Background(), msgFor(notifications.ChannelEmail, ""))
		assert.ErrorIs(t, err, notifications.ErrNoAddress)
		assert.Equal(t, notifications.StatusSkipped, res.Status)
	})

	t.Run("sender failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		r := notifications.NewRouter(notifications.WithSender(notifications.SenderFunc(func(context.Context, notifications.Message) (notifications.DeliveryResult, error) {
			return notifications.DeliveryResult{}, boom
		}), notifications.ChannelEmail))

		res, err := r.Deliver(context.Background(), msgFor(notifications.ChannelEmail, "a@b.co"))
		assert.ErrorIs(t, err, notifications.ErrDeliveryFailed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, notifications.StatusFailed, res.Status)
		assert.Equal(t, "boom", res.Error)
	})

	t.Run("log failure does not fail delivery", func(t *testing.T) {
		t.Parallel()

		r := notifications.NewRouter(
			notifications.WithDeliveryLog(&recordingLog{err: errors.New("down")}),
			notifications.WithSender(notifications.NoOpSender{}, notifications.ChannelEmail),
		)
		_, err := r.Deliver(context.Background(), msgFor(notifications.ChannelEmail, "a@b.co"))
		assert.NoError(t, err)
	})
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	r := notifications.NewRouter()
	assert.Equal(t, 0, r.Channels().Len())
	r.Register(notifications.ChannelWebhook, notifications.NoOpSender{})
	assert.True(t, r.Channels().Has(notifications.ChannelWebhook))
}
