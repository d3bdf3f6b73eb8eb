package ratelimiter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBucket(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Bucket, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithClock(clk.Now))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	return b, clk
}

func TestNewBucketValidatesConfig(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	defer store.Close()

	for _, cfg := range []ratelimiter.Config{
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 1},
	} {
		_, err := ratelimiter.NewBucket(store, cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("burst then refill", func(t *testing.T) {
		t.Parallel()
		b, clk := newBucket(t, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second})

		for want := 2; want >= 0; want-- {
			res, err := b.Allow(ctx, "acme")
			require.NoError(t, err)
			assert.True(t, res.Allowed())
			assert.Equal(t, want, res.Remaining)
		}
		res, err := b.Allow(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, res.Allowed())

		clk.Advance(time.Second)
		res, err = b.Allow(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("denied requests do not consume", func(t *testing.T) {
		t.Parallel()
		b, clk := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})

		_, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		for range 5 {
			res, err := b.Allow(ctx, "k")
			require.NoError(t, err)
			assert.False(t, res.Allowed())
		}
		clk.Advance(time.Second)
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		t.Parallel()
		b, clk := newBucket(t, ratelimiter.Config{Capacity: 2, RefillRate: 5, RefillInterval: time.Second})
		_, err := b.AllowN(ctx, "k", 2)
		require.NoError(t, err)
		clk.Advance(time.Hour)
		res, err := b.Status(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		_, err := b.Allow(ctx, "a")
		require.NoError(t, err)
		res, err := b.Allow(ctx, "b")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("reset restores capacity", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		_, err := b.Allow(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, b.Reset(ctx, "a"))
		res, err := b.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("non-positive count", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		_, err := b.AllowN(ctx, "a", 0)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	})
}

type failingStore struct{}

func (failingStore) ConsumeTokens(context.Context, string, int, ratelimiter.Config) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error { return nil }

func TestMiddleware(t *testing.T) {
	t.Parallel()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	do := func(h http.Handler, tenant string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/events", nil)
		if tenant != "" {
			r.Header.Set("X-Tenant-ID", tenant)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("throttles per tenant", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		h := ratelimiter.Middleware(b, ratelimiter.ByHeader("X-Tenant-ID"), nil)(ok)

		rec := do(h, "acme")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = do(h, "acme")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rate_limited", body.Error.Code)

		assert.Equal(t, http.StatusOK, do(h, "globex").Code)
	})

	t.Run("empty key is not throttled", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		h := ratelimiter.Middleware(b, ratelimiter.ByHeader("X-Tenant-ID"), nil)(ok)
		for range 3 {
			assert.Equal(t, http.StatusOK, do(h, "").Code)
		}
	})

	t.Run("store failure lets requests through", func(t *testing.T) {
		t.Parallel()
		b, err := ratelimiter.NewBucket(failingStore{}, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, ratelimiter.ByHeader("X-Tenant-ID"), nil)(ok)
		assert.Equal(t, http.StatusOK, do(h, "acme").Code)
	})
}

func TestKeyFuncs(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	r.RemoteAddr = "192.0.2.10:4000"
	r.Header.Set("X-Tenant-ID", "acme")

	assert.Equal(t, "acme", ratelimiter.FirstOf(ratelimiter.ByHeader("X-Tenant-ID"), ratelimiter.ByClientIP())(r))
	assert.Equal(t, "192.0.2.10", ratelimiter.FirstOf(ratelimiter.ByHeader("X-Missing"), ratelimiter.ByClientIP())(r))
	assert.Equal(t, "acme:192.0.2.10", ratelimiter.Composite(ratelimiter.ByHeader("X-Tenant-ID"), ratelimiter.ByClientIP())(r))

	r.Header.Set("X-Tenant-ID", strings.Repeat("t", 80))
	long := ratelimiter.Composite(ratelimiter.ByHeader("X-Tenant-ID"), ratelimiter.ByClientIP())(r)
	assert.LessOrEqual(t, len(long), 64)
}
