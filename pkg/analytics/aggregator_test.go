package analytics_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func key(event, tmpl string, ch notifications.Channel, tenant string) analytics.Key {
	return analytics.Key{EventKey: event, TemplateType: tmpl, Channel: ch, TenantID: tenant, Locale: "en"}
}

func TestGetStatsZeroRenders(t *testing.T) {
	t.Parallel()
	agg := analytics.New(analytics.NewMemoryStore())

	snap, err := agg.GetStats(context.Background(), analytics.StatsQuery{EventKey: "order.completed", WindowDays: 7})
	require.NoError(t, err)
	for _, m := range []analytics.Metrics{snap.Window, snap.Lifetime} {
		assert.Zero(t, m.SuccessRate)
		assert.Zero(t, m.ErrorRate)
		assert.Zero(t, m.CTR)
		assert.Zero(t, m.OpenRate)
		assert.Zero(t, m.ConversionRate)
		assert.Zero(t, m.AvgRenderMs)
	}
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)}
	agg := analytics.New(analytics.NewMemoryStore(), analytics.WithClock(clk.Now))
	ctx := context.Background()

	k := key("order.completed", "default", notifications.ChannelEmail, "t1")
	// Outside the 7 day window, counted only in lifetime.
	require.NoError(t, agg.RecordRender(ctx, k, true, 10*time.Millisecond))
	clk.Advance(10 * 24 * time.Hour)

	require.NoError(t, agg.RecordRender(ctx, k, true, 20*time.Millisecond))
	require.NoError(t, agg.RecordRender(ctx, k, true, 40*time.Millisecond))
	require.NoError(t, agg.RecordRender(ctx, k, false, 0))
	require.NoError(t, agg.RecordRender(ctx, key("order.completed", "default", notifications.ChannelPush, "t1"), true, 0))
	require.NoError(t, agg.RecordEngagement(ctx, k, analytics.EngagementClick))
	require.NoError(t, agg.RecordEngagement(ctx, k, analytics.EngagementOpen))
	require.NoError(t, agg.RecordEngagement(ctx, key("order.completed", "default", notifications.ChannelEmail, "t2"), analytics.EngagementOpen))

	snap, err := agg.GetStats(ctx, analytics.StatsQuery{EventKey: "order.completed", WindowDays: 7, TenantID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), snap.Window.Renders)
	assert.Equal(t, int64(5), snap.Lifetime.Renders)
	assert.InDelta(t, 75.0, snap.Window.SuccessRate, 0.001)
	assert.InDelta(t, 25.0, snap.Window.ErrorRate, 0.001)
	assert.InDelta(t, 25.0, snap.Window.CTR, 0.001)
	assert.InDelta(t, 25.0, snap.Window.OpenRate, 0.001)
	assert.InDelta(t, 15.0, snap.Window.AvgRenderMs, 0.001)
	assert.Equal(t, int64(3), snap.ByChannel[notifications.ChannelEmail].Renders)
	assert.Equal(t, int64(1), snap.ByChannel[notifications.ChannelPush].Renders)
	assert.Equal(t, int64(4), snap.ByLocale["en"].Renders)

	all, err := agg.GetStats(ctx, analytics.StatsQuery{EventKey: "order.completed", WindowDays: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Window.Opens)
}

func TestGetStatsCached(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Now()}
	agg := analytics.New(analytics.NewMemoryStore(), analytics.WithClock(clk.Now), analytics.WithCacheTTL(5*time.Minute))
	ctx := context.Background()
	q := analytics.StatsQuery{EventKey: "a", WindowDays: 1}
	k := key("a", "default", notifications.ChannelEmail, "")

	require.NoError(t, agg.RecordRender(ctx, k, true, 0))
	first, err := agg.GetStats(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Window.Renders)

	require.NoError(t, agg.RecordRender(ctx, k, true, 0))
	cached, err := agg.GetStats(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Window.Renders, "writes do not bust the cache")

	clk.Advance(6 * time.Minute)
	fresh, err := agg.GetStats(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Window.Renders)
}

func TestTopTemplates(t *testing.T) {
	t.Parallel()
	agg := analytics.New(analytics.NewMemoryStore())
	ctx := context.Background()

	record := func(event, tmpl string, ok, failed int) {
		k := key(event, tmpl, notifications.ChannelEmail, "")
		for range ok {
			require.NoError(t, agg.RecordRender(ctx, k, true, 0))
		}
		for range failed {
			require.NoError(t, agg.RecordRender(ctx, k, false, 0))
		}
	}
	record("b.event", "default", 3, 1)
	record("a.event", "digest", 6, 2)
	record("a.event", "default", 3, 1)
	record("c.event", "default", 1, 0)

	ranks, err := agg.TopTemplates(ctx, 3, 7, analytics.MetricErrorRate)
	require.NoError(t, err)
	require.Len(t, ranks, 3)
	assert.Equal(t, [][2]string{{"a.event", "default"}, {"a.event", "digest"}, {"b.event", "default"}},
		[][2]string{
			{ranks[0].EventKey, ranks[0].TemplateType},
			{ranks[1].EventKey, ranks[1].TemplateType},
			{ranks[2].EventKey, ranks[2].TemplateType},
		})
	assert.InDelta(t, 25.0, ranks[0].Value, 0.001)

	byRenders, err := agg.TopTemplates(ctx, 0, 7, analytics.MetricRenders)
	require.NoError(t, err)
	require.Len(t, byRenders, 4)
	assert.Equal(t, "a.event", byRenders[0].EventKey)
	assert.Equal(t, "digest", byRenders[0].TemplateType)

	_, err = agg.TopTemplates(ctx, 3, 7, analytics.Metric("bogus"))
	assert.ErrorIs(t, err, analytics.ErrInvalidMetric)
}

func TestValidation(t *testing.T) {
	t.Parallel()
	agg := analytics.New(analytics.NewMemoryStore())
	ctx := context.Background()

	_, err := agg.GetStats(ctx, analytics.StatsQuery{EventKey: "a"})
	assert.ErrorIs(t, err, analytics.ErrInvalidWindow)

	err = agg.RecordEngagement(ctx, key("a", "", notifications.ChannelEmail, ""), analytics.EngagementKind("like"))
	assert.ErrorIs(t, err, analytics.ErrInvalidEngagement)

	kind, err := analytics.ParseEngagementKind(" Click ")
	require.NoError(t, err)
	assert.Equal(t, analytics.EngagementClick, kind)
}

type failingStore struct{ analytics.Store }

func (failingStore) Increment(context.Context, analytics.Increment) error {
	return errors.New("connection refused")
}

func TestRecordStoreFailure(t *testing.T) {
	t.Parallel()
	agg := analytics.New(failingStore{analytics.NewMemoryStore()})
	err := agg.RecordRender(context.Background(), key("a", "", notifications.ChannelEmail, ""), true, 0)
	assert.ErrorIs(t, err, analytics.ErrStoreFailed)
}

func TestConcurrentIncrements(t *testing.T) {
	t.Parallel()
	store := analytics.NewMemoryStore()
	agg := analytics.New(store)
	ctx := context.Background()
	k := key("hot.event", "default", notifications.ChannelEmail, "t1")

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.RecordRender(ctx, k, true, time.Millisecond))
		}()
	}
	wg.Wait()

	rows, err := store.Usage(ctx, "hot.event", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0].Renders)
	assert.Equal(t, int64(100), rows[0].RenderMs)
}
