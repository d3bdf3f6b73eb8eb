package templates_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/i18n"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

type usageSpy struct {
	mu    sync.Mutex
	calls []usageCall
}

type usageCall struct {
	key     analytics.Key
	success bool
}

func (u *usageSpy) RecordRender(_ context.Context, key analytics.Key, success bool, _ time.Duration) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, usageCall{key, success})
	return nil
}

func put(t *testing.T, s templates.TranslationStore, tr templates.Translation) {
	t.Helper()
	require.NoError(t, s.PutTranslation(context.Background(), tr))
}

func english(event string) templates.Translation {
	return templates.Translation{
		EventKey:     event,
		TemplateType: templates.TypeDefault,
		Language:     "en",
		Title:        "Order %{order.id} completed",
		Text:         "Thanks, %{user.name}!",
		HTML:         "<p>Thanks, %{user.name}!</p>",
	}
}

var payload = map[string]any{
	"order": map[string]any{"id": 42},
	"user":  map[string]any{"name": "<Ann>"},
}

func TestRenderLocaleFallback(t *testing.T) {
	t.Parallel()
	store := templates.NewMemoryStore()
	put(t, store, english("order.completed"))
	r := templates.NewResolver(store)

	out, err := r.Render(context.Background(), templates.RenderRequest{
		EventKey:  "order.completed",
		Channel:   notifications.ChannelEmail,
		Recipient: notifications.Recipient{ID: "u1", Locale: "fr"},
		Payload:   payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "en", out.Language)
	assert.Equal(t, "Order 42 completed", out.Content.Title)
	assert.Equal(t, "Thanks, <Ann>!", out.Content.Text)
	assert.Equal(t, "<p>Thanks, &lt;Ann&gt;!</p>", out.Content.HTML)
	assert.Equal(t, templates.VariantNone, out.Variant)
}

func TestRenderPrefersSpecificContent(t *testing.T) {
	t.Parallel()
	store := templates.NewMemoryStore()
	put(t, store, english("order.completed"))
	de := english("order.completed")
	de.Language, de.Title = "de", "Bestellung %{order.id}"
	put(t, store, de)
	tenantDE := de
	tenantDE.TenantID, tenantDE.Title = "t1", "Acme Bestellung %{order.id}"
	put(t, store, tenantDE)
	r := templates.NewResolver(store)

	tests := []struct {
		name      string
		locale    string
		fallbacks []string
		tenant    string
		tenantLng []string
		wantTitle string
	}{
		{"regional tag uses base language", "de-AT", nil, "", nil, "Bestellung 42"},
		{"tenant override", "de", nil, "t1", nil, "Acme Bestellung 42"},
		{"recipient fallbacks", "fr", []string{"de"}, "", nil, "Bestellung 42"},
		{"explicit fallback before regional base", "en-GB", []string{"de"}, "", nil, "Bestellung 42"},
		{"tenant languages", "fr", nil, "t2", []string{"de"}, "Bestellung 42"},
		{"preferred language wins over tenant", "en", nil, "t1", []string{"de"}, "Order 42 completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := r.Render(context.Background(), templates.RenderRequest{
				EventKey:        "order.completed",
				Channel:         notifications.ChannelEmail,
				Recipient:       notifications.Recipient{ID: "u1", Locale: tt.locale, FallbackLocales: tt.fallbacks},
				TenantID:        tt.tenant,
				TenantLanguages: tt.tenantLng,
				Payload:         payload,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, out.Content.Title)
		})
	}
}

func TestRenderFailuresAreCounted(t *testing.T) {
	t.Parallel()
	store := templates.NewMemoryStore()
	put(t, store, english("order.completed"))
	usage := &usageSpy{}
	r := templates.NewResolver(store, templates.WithUsageRecorder(usage))
	ctx := context.Background()

	_, err := r.Render(ctx, templates.RenderRequest{
		EventKey:  "order.completed",
		Channel:   notifications.ChannelEmail,
		Recipient: notifications.Recipient{ID: "u1", Locale: "en"},
		Payload:   map[string]any{"order": map[string]any{"id": 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, templates.ErrRender)
	assert.ErrorIs(t, err, i18n.ErrMissingValue)
	var renderErr *templates.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "text", renderErr.Field)

	_, err = r.Render(ctx, templates.RenderRequest{
		EventKey:  "user.joined",
		Channel:   notifications.ChannelEmail,
		Recipient: notifications.Recipient{ID: "u1", Locale: "fr"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, templates.ErrNoTranslation)
	var noTr *templates.NoTranslationError
	require.ErrorAs(t, err, &noTr)
	assert.Equal(t, []string{"fr", "en"}, noTr.Languages)

	require.Len(t, usage.calls, 2)
	assert.False(t, usage.calls[0].success)
	assert.False(t, usage.calls[1].success)
	assert.Equal(t, "fr", usage.calls[1].key.Locale)
}

type aliasNormalizer map[string]string

func (a aliasNormalizer) Normalize(key string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return key
}

func TestRenderNormalizesKey(t *testing.T) {
	t.Parallel()
	store := templates.NewMemoryStore()
	put(t, store, english("order.completed"))
	r := templates.NewResolver(store, templates.WithNormalizer(aliasNormalizer{"order.complete": "order.completed"}))

	out, err := r.Render(context.Background(), templates.RenderRequest{
		EventKey:  "order.complete",
		Recipient: notifications.Recipient{ID: "u1"},
		Payload:   payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "order.completed", out.EventKey)
}

func TestBucketDeterministic(t *testing.T) {
	t.Parallel()
	first := templates.Bucket("recipient-17", "test-abc")
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 100)
	for range 1000 {
		require.Equal(t, first, templates.Bucket("recipient-17", "test-abc"))
	}

	test := templates.ABTest{ID: "test-abc", TrafficPercentage: 100}
	variant, ok := templates.Assign(test, 50, 50, "recipient-17")
	require.True(t, ok)
	for range 1000 {
		v, _ := templates.Assign(test, 50, 50, "recipient-17")
		require.Equal(t, variant, v)
	}
}

func TestAssignDistribution(t *testing.T) {
	t.Parallel()
	const population = 20000

	tests := []struct {
		name         string
		traffic      int
		controlShare int
		testShare    int
		wantTest     float64
	}{
		{"even split", 100, 50, 50, 50},
		{"uneven split", 100, 70, 30, 30},
		{"partial traffic", 40, 50, 50, 50},
		{"shares below 100", 100, 20, 30, 60},
		{"control without share", 100, 0, 40, 100},
		{"test without share", 100, 50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ab := templates.ABTest{ID: "split-" + tt.name, TrafficPercentage: tt.traffic}
			var in, testArm int
			for i := range population {
				v, ok := templates.Assign(ab, tt.controlShare, tt.testShare, fmt.Sprintf("user-%d", i))
				if !ok {
					continue
				}
				in++
				if v == templates.VariantTest {
					testArm++
				}
			}
			assert.InDelta(t, float64(tt.traffic), float64(in)/population*100, 3)
			assert.InDelta(t, tt.wantTest, float64(testArm)/float64(in)*100, 3)
		})
	}
}

func TestRenderWithVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := templates.NewMemoryStore()
	mgr := templates.NewVersionManager(store, store, templates.WithManagerClock(clock))

	newVersion := func(label, title string, share int) templates.TemplateVersion {
		tr := english("")
		tr.Title = title
		v, err := mgr.CreateVersion(ctx, templates.NewVersion{
			EventKey:          "order.completed",
			Channel:           notifications.ChannelEmail,
			Version:           label,
			Active:            true,
			TrafficPercentage: share,
			Translations:      []templates.Translation{tr},
		})
		require.NoError(t, err)
		return v
	}
	control := newVersion("v1", "Control %{order.id}", 50)
	require.NoError(t, mgr.SetDefault(ctx, control.ID))

	r := templates.NewResolver(store, templates.WithVersionStore(store), templates.WithResolverClock(clock))
	req := func(id string) templates.RenderRequest {
		return templates.RenderRequest{
			EventKey:  "order.completed",
			Channel:   notifications.ChannelEmail,
			Recipient: notifications.Recipient{ID: id, Locale: "en"},
			Payload:   payload,
		}
	}

	out, err := r.Render(ctx, req("u1"))
	require.NoError(t, err)
	assert.Equal(t, templates.VariantDefault, out.Variant)
	assert.Equal(t, "Control 42", out.Content.Title)

	test := newVersion("v2", "Test %{order.id}", 50)
	ab, err := mgr.StartTest(ctx, templates.ABTest{
		Name:              "subject line",
		ControlVersionID:  control.ID,
		TestVersionID:     test.ID,
		StartDate:         now.Add(-time.Hour),
		EndDate:           now.Add(24 * time.Hour),
		TrafficPercentage: 100,
	})
	require.NoError(t, err)

	counts := map[templates.Variant]int{}
	for i := range 400 {
		out, err := r.Render(ctx, req(fmt.Sprintf("user-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, ab.ID, out.TestID)
		counts[out.Variant]++
		if out.Variant == templates.VariantTest {
			assert.Equal(t, "Test 42", out.Content.Title)
		} else {
			assert.Equal(t, "Control 42", out.Content.Title)
		}
	}
	assert.Positive(t, counts[templates.VariantTest])
	assert.Positive(t, counts[templates.VariantControl])

	snapControl, err := mgr.Snapshot(ctx, control.ID)
	require.NoError(t, err)
	snapTest, err := mgr.Snapshot(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(401), snapControl.RenderCount+snapTest.RenderCount)
	assert.Equal(t, int64(counts[templates.VariantTest]), snapTest.SuccessCount)
}

func TestRolloutEligibility(t *testing.T) {
	t.Parallel()
	now := time.Now()
	v := templates.TemplateVersion{EventKey: "order.completed", IsActive: true, TrafficPercentage: 100}
	assert.True(t, v.IsEligibleForUser("u1", now))

	v.TrafficPercentage = 0
	assert.False(t, v.IsEligibleForUser("u1", now))

	v.TrafficPercentage = 100
	end := now.Add(-time.Minute)
	v.EndDate = &end
	assert.False(t, v.IsEligibleForUser("u1", now))

	v.EndDate, v.IsActive = nil, false
	assert.False(t, v.IsEligibleForUser("u1", now))
}
