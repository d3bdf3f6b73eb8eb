package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestWebhookSender(t *testing.T) {
	t.Parallel()

	t.Run("signs and posts payload", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		var sig, ts string
		var body []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ = io.ReadAll(r.Body)
			sig = r.Header.Get("X-Webhook-Signature")
			ts = r.Header.Get("X-Webhook-Timestamp")
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "yes", r.Header.Get("X-Custom"))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		s := notifications.NewWebhookSender(
			notifications.WithWebhookEndpoint(srv.URL),
			notifications.WithWebhookSecret("s3cret"),
			notifications.WithWebhookHeader("X-Custom", "yes"),
		)
		res, err := s.Deliver(context.Background(), msgFor(notifications.ChannelWebhook, "hook-1"))
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusDelivered, res.Status)
		assert.Equal(t, "202", res.ProviderID)

		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "order.shipped", got["event"])
		assert.Equal(t, "Shipped", got["title"])
		assert.Equal(t, notifications.SignWebhook("s3cret", ts, body), sig)
	})

	t.Run("address url overrides endpoint", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		s := notifications.NewWebhookSender(notifications.WithWebhookEndpoint("http://127.0.0.1:1/unused"))
		_, err := s.Deliver(context.Background(), msgFor(notifications.ChannelWebhook, srv.URL+"/hook"))
		require.NoError(t, err)
		assert.EqualValues(t, 1, hits.Load())
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		s := notifications.NewWebhookSender(
			notifications.WithWebhookEndpoint(srv.URL),
			notifications.WithWebhookRetries(3, time.Millisecond),
		)
		_, err := s.Deliver(context.Background(), msgFor(notifications.ChannelWebhook, ""))
		require.NoError(t, err)
		assert.EqualValues(t, 3, hits.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		s := notifications.NewWebhookSender(
			notifications.WithWebhookEndpoint(srv.URL),
			notifications.WithWebhookRetries(3, time.Millisecond),
		)
		_, err := s.Deliver(context.Background(), msgFor(notifications.ChannelWebhook, ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.EqualValues(t, 1, hits.Load())
	})

	t.Run("no endpoint", func(t *testing.T) {
		t.Parallel()

		_, err := notifications.NewWebhookSender().Deliver(context.Background(), msgFor(notifications.ChannelWebhook, "hook-1"))
		assert.ErrorIs(t, err, notifications.ErrNoAddress)
	})
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaSender(t *testing.T) {
	t.Parallel()

	t.Run("publishes command keyed by target", func(t *testing.T) {
		t.Parallel()

		w := &fakeKafkaWriter{}
		s := notifications.NewKafkaSender(w, "relay")
		res, err := s.Deliver(context.Background(), msgFor(notifications.ChannelSMS, "+15550100"))
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusDelivered, res.Status)
		assert.Equal(t, "relay", res.ProviderID)

		require.Len(t, w.msgs, 1)
		m := w.msgs[0]
		assert.Equal(t, "relay", m.Topic)
		assert.Equal(t, "+15550100", string(m.Key))

		var cmd notifications.KafkaCommand
		require.NoError(t, json.Unmarshal(m.Value, &cmd))
		assert.Equal(t, notifications.KafkaCommand{
			ID:       "n1",
			Event:    "order.shipped",
			Channel:  notifications.ChannelSMS,
			Target:   "+15550100",
			TenantID: "t1",
			Subject:  "Shipped",
			Content:  "on its way",
		}, cmd)
	})

	t.Run("writer failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("broker down")
		s := notifications.NewKafkaSender(&fakeKafkaWriter{err: boom}, "relay")
		_, err := s.Deliver(context.Background(), msgFor(notifications.ChannelPush, "device-1"))
		assert.ErrorIs(t, err, boom)
	})
}

type fakeMailer struct {
	params email.SendEmailParams
	err    error
}

func (m *fakeMailer) SendEmail(_ context.Context, p email.SendEmailParams) error {
	m.params = p
	return m.err
}

func TestEmailSender(t *testing.T) {
	t.Parallel()

	t.Run("text body is escaped into html", func(t *testing.T) {
		t.Parallel()

		m := &fakeMailer{}
		msg := msgFor(notifications.ChannelEmail, "user@example.com")
		msg.Content.Text = "a <b>\nline"
		res, err := notifications.NewEmailSender(m).Deliver(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusDelivered, res.Status)
		assert.Equal(t, "user@example.com", m.params.SendTo)
		assert.Equal(t, "Shipped", m.params.Subject)
		assert.Equal(t, "<p>a &lt;b&gt;<br>line</p>", m.params.BodyHTML)
		assert.Equal(t, "order.shipped", m.params.Tag)
	})

	t.Run("subject falls back to event key", func(t *testing.T) {
		t.Parallel()

		m := &fakeMailer{}
		msg := msgFor(notifications.ChannelEmail, "user@example.com")
		msg.Content = notifications.Content{HTML: "<p>hi</p>"}
		_, err := notifications.NewEmailSender(m).Deliver(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, "order.shipped", m.params.Subject)
		assert.Equal(t, "<p>hi</p>", m.params.BodyHTML)
	})

	t.Run("mailer failure", func(t *testing.T) {
		t.Parallel()

		m := &fakeMailer{err: email.ErrFailedToSendEmail}
		_, err := notifications.NewEmailSender(m).Deliver(context.Background(), msgFor(notifications.ChannelEmail, "a@b.c"))
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})
}
