package ingest_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/ingest"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
)

type emitCall struct {
	eventKey  string
	payload   map[string]any
	recipient notifications.Recipient
	tenantID  string
	opts      int
	requestID string
}

type fakeEmitter struct {
	mu    sync.Mutex
	calls []emitCall
	err   error
}

func (f *fakeEmitter) Emit(ctx context.Context, eventKey string, payload map[string]any, recipient notifications.Recipient, tenantID string, opts ...dispatch.EmitOption) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, emitCall{eventKey, payload, recipient, tenantID, len(opts), requestid.FromContext(ctx)})
	res := dispatch.Result{EventKey: eventKey, Known: true, Channels: []dispatch.ChannelResult{
		{Channel: notifications.ChannelEmail, Outcome: dispatch.OutcomeDelivered},
	}}
	return res, f.err
}

func (f *fakeEmitter) Calls() []emitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitCall(nil), f.calls...)
}

type fakeTracker struct {
	got []dispatch.Engagement
	err error
}

func (f *fakeTracker) TrackEngagement(_ context.Context, e dispatch.Engagement) error {
	f.got = append(f.got, e)
	return f.err
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func TestEmitEndpoint(t *testing.T) {
	t.Parallel()

	const valid = `{"event_key":"invoice.paid","tenant_id":"acme","recipient":{"id":"u1","locale":"fr"},
		"payload":{"invoice":{"id":"INV-1"}},"locale":"fr-CA","template_type":"promo"}`

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "accepted", body: valid, status: http.StatusOK},
		{name: "malformed json", body: `{"event_key":`, status: http.StatusBadRequest, code: "invalid_body"},
		{name: "unknown field", body: `{"event":"x"}`, status: http.StatusBadRequest, code: "invalid_body"},
		{name: "missing recipient", body: `{"event_key":"invoice.paid","recipient":{}}`, status: http.StatusBadRequest, code: "invalid_event"},
		{name: "every channel failed", body: valid, err: dispatch.ErrAllChannelsFailed, status: http.StatusBadGateway, code: "delivery_failed"},
		{name: "missing group path", body: valid, err: &digest.MissingGroupByPathError{EventKey: "invoice.paid", Path: "user.id", Reason: "is missing"}, status: http.StatusUnprocessableEntity, code: "missing_group_by"},
		{name: "missing group path joined", body: valid, err: errors.Join(dispatch.ErrAllChannelsFailed, &digest.MissingGroupByPathError{EventKey: "invoice.paid", Path: "user.id", Reason: "is missing"}), status: http.StatusUnprocessableEntity, code: "missing_group_by"},
		{name: "shutting down", body: valid, err: errors.Join(dispatch.ErrAllChannelsFailed, digest.ErrSchedulerClosed), status: http.StatusServiceUnavailable, code: "shutting_down"},
		{name: "unexpected", body: valid, err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			em := &fakeEmitter{err: tt.err}
			rec := post(t, ingest.NewAPI(em).Routes(), "/events", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var env struct {
				Data  *dispatch.Result `json:"data"`
				Error *struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			if tt.code == "" {
				require.Nil(t, env.Error)
				require.NotNil(t, env.Data)
				assert.Equal(t, "invoice.paid", env.Data.EventKey)

				calls := em.Calls()
				require.Len(t, calls, 1)
				assert.Equal(t, "acme", calls[0].tenantID)
				assert.Equal(t, "u1", calls[0].recipient.ID)
				assert.Equal(t, 2, calls[0].opts)
				return
			}
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestEmitLocaleFromAcceptLanguage(t *testing.T) {
	t.Parallel()
	h := func(em *fakeEmitter, header string) {
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"event_key":"invoice.paid","recipient":{"id":"u1"}}`))
		if header != "" {
			req.Header.Set("Accept-Language", header)
		}
		rec := httptest.NewRecorder()
		ingest.NewAPI(em).Routes().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	withHeader := &fakeEmitter{}
	h(withHeader, "de-CH, en;q=0.5")
	require.Len(t, withHeader.Calls(), 1)
	assert.Equal(t, 1, withHeader.Calls()[0].opts, "locale option from the header")

	without := &fakeEmitter{}
	h(without, "")
	require.Len(t, without.Calls(), 1)
	assert.Zero(t, without.Calls()[0].opts)
}

func TestEngagementEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		rec := post(t, ingest.NewAPI(&fakeEmitter{}).Routes(), "/engagement", `{}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recorded", func(t *testing.T) {
		t.Parallel()
		tr := &fakeTracker{}
		h := ingest.NewAPI(&fakeEmitter{}, ingest.WithTracker(tr)).Routes()
		rec := post(t, h, "/engagement", `{"event_key":"invoice.paid","channel":"email","version_id":"v2","kind":"click"}`)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Len(t, tr.got, 1)
		assert.Equal(t, analytics.EngagementClick, tr.got[0].Kind)
		assert.Equal(t, "v2", tr.got[0].VersionID)
		assert.Equal(t, notifications.ChannelEmail, tr.got[0].Key.Channel)
	})

	t.Run("invalid kind", func(t *testing.T) {
		t.Parallel()
		tr := &fakeTracker{err: errors.Join(dispatch.ErrInvalidEngagement, analytics.ErrInvalidEngagement)}
		h := ingest.NewAPI(&fakeEmitter{}, ingest.WithTracker(tr)).Routes()
		rec := post(t, h, "/engagement", `{"event_key":"invoice.paid","kind":"like"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStream(t *testing.T) {
	t.Parallel()

	rt := notifications.NewRealtime(8)
	srv := httptest.NewServer(ingest.NewAPI(&fakeEmitter{}, ingest.WithRealtime(rt)).Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/u1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Equal(t, 1, rt.Publish(ctx, notifications.Notification{ID: "n1", RecipientID: "u1", Title: "Hello"}))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: n1", lines[0])
	assert.Equal(t, "event: notification", lines[1])
	assert.Contains(t, lines[2], `"title":"Hello"`)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) Committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestEmitRateLimited(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	em := &fakeEmitter{}
	h := ingest.NewAPI(em, ingest.WithRateLimit(ratelimiter.Middleware(bucket, ratelimiter.ByClientIP(), nil))).Routes()

	body := `{"event_key":"invoice.paid","recipient":{"id":"u1"}}`
	assert.Equal(t, http.StatusOK, post(t, h, "/events", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, "/events", body).Code)
	assert.Len(t, em.Calls(), 1)
}

func TestKafkaConsumer(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"event_key":"invoice.paid","recipient":{"id":"u1"}}`), Headers: []kafka.Header{{Key: requestid.Header, Value: []byte("req-1")}}},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"event_key":"invoice.paid","recipient":{}}`)},
		{Offset: 4, Value: []byte(`{"event_key":"order.completed","recipient":{"id":"u2"},"tenant_id":"acme"}`)},
	}}
	em := &fakeEmitter{}
	consumer := ingest.NewKafkaConsumer(reader, em, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.Committed(), "bad messages are committed too")
	calls := em.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "invoice.paid", calls[0].eventKey)
	assert.Equal(t, "req-1", calls[0].requestID)
	assert.Equal(t, "acme", calls[1].tenantID)
	assert.True(t, requestid.Valid(calls[1].requestID), "a missing header gets a generated ID")
	assert.True(t, reader.closed)
}

func TestKafkaConsumerKeepsOffsetWhenSchedulerClosed(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte(`{"event_key":"order.completed","recipient":{"id":"u1"}}`)},
		{Offset: 8, Value: []byte(`{"event_key":"order.completed","recipient":{"id":"u2"}}`)},
	}}
	em := &fakeEmitter{err: errors.Join(dispatch.ErrAllChannelsFailed, digest.ErrSchedulerClosed)}
	consumer := ingest.NewKafkaConsumer(reader, em, nil)

	require.NoError(t, consumer.Run(context.Background()))
	assert.Empty(t, reader.Committed())
	assert.Len(t, em.Calls(), 1)
	assert.True(t, reader.closed)
}
