package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestMemoryStorage_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notifications.NewMemoryStorage()
	base := time.Now().Add(-time.Hour)
	past := time.Now().Add(-time.Minute)

	for i, key := range []string{"a", "b", "a", "c"} {
		require.NoError(t, s.Create(ctx, notifications.Notification{
			ID:          string(rune('1' + i)),
			RecipientID: "u1",
			EventKey:    key,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Create(ctx, notifications.Notification{
		ID: "expired", RecipientID: "u1", EventKey: "a", ExpiresAt: &past,
	}))

	all, err := s.List(ctx, "u1", notifications.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "4", all[0].ID, "newest first")

	page, err := s.List(ctx, "u1", notifications.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, []string{page[0].ID, page[1].ID})

	onlyA, err := s.List(ctx, "u1", notifications.ListOptions{EventKeys: []string{"a"}})
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	beyond, err := s.List(ctx, "u1", notifications.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	assert.Error(t, s.Create(ctx, notifications.Notification{RecipientID: "u1"}))
}

func TestInbox(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := notifications.NewRealtime(4)
	defer rt.Close()
	inbox := notifications.NewInbox(notifications.NewMemoryStorage(), notifications.WithInboxRealtime(rt))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := rt.Subscribe(subCtx, "u1")

	res, err := inbox.Deliver(ctx, notifications.Message{
		NotificationID: "n1",
		RecipientID:    "u1",
		EventKey:       "comment.created",
		Channel:        notifications.ChannelInApp,
		Address:        "u1",
		Content:        notifications.Content{Title: "New comment", Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDelivered, res.Status)
	assert.Equal(t, "n1", res.ProviderID)

	select {
	case n := <-sub.C():
		assert.Equal(t, "New comment", n.Title)
	case <-time.After(time.Second):
		t.Fatal("expected realtime push")
	}

	count, err := inbox.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = inbox.Send(ctx, notifications.Notification{RecipientID: "u1", EventKey: "x"})
	require.NoError(t, err)

	require.NoError(t, inbox.MarkAllRead(ctx, "u1"))
	count, err = inbox.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	n, err := inbox.Get(ctx, "u1", "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)
	assert.NotNil(t, n.ReadAt)

	require.NoError(t, inbox.Delete(ctx, "u1", "n1"))
	_, err = inbox.Get(ctx, "u1", "n1")
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
}

func TestRealtime(t *testing.T) {
	t.Parallel()

	t.Run("no subscriber is skipped", func(t *testing.T) {
		t.Parallel()

		rt := notifications.NewRealtime(1)
		defer rt.Close()
		res, err := rt.Deliver(context.Background(), notifications.Message{Address: "nobody", Channel: notifications.ChannelSSE})
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusSkipped, res.Status)
	})

	t.Run("full buffer drops instead of blocking", func(t *testing.T) {
		t.Parallel()

		rt := notifications.NewRealtime(1)
		defer rt.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rt.Subscribe(ctx, "u1")

		assert.Equal(t, 1, rt.Publish(ctx, notifications.Notification{RecipientID: "u1"}))
		assert.Equal(t, 0, rt.Publish(ctx, notifications.Notification{RecipientID: "u1"}))
	})

	t.Run("cancel closes subscription", func(t *testing.T) {
		t.Parallel()

		rt := notifications.NewRealtime(1)
		defer rt.Close()
		ctx, cancel := context.WithCancel(context.Background())
		sub := rt.Subscribe(ctx, "u1")
		cancel()

		select {
		case _, ok := <-sub.C():
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscription not closed")
		}
	})

	t.Run("eviction closes streams", func(t *testing.T) {
		t.Parallel()

		rt := notifications.NewRealtime(1, notifications.WithMaxStreams(1))
		defer rt.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		first := rt.Subscribe(ctx, "u1")
		rt.Subscribe(ctx, "u2")

		_, ok := <-first.C()
		assert.False(t, ok)
	})
}
