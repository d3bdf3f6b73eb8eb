package tenant_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

func TestMemoryProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := tenant.NewMemoryProvider(&tenant.Tenant{
		ID:       "acme",
		Active:   true,
		Channels: map[notifications.Channel]bool{notifications.ChannelSMS: false},
	}, nil, &tenant.Tenant{})

	got, err := p.Get(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, got.Active)

	got.Channels[notifications.ChannelSMS] = true
	again, _ := p.Get(ctx, "acme")
	assert.False(t, again.Channels[notifications.ChannelSMS], "returned tenants are copies")

	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	p, err := tenant.LoadYAML(strings.NewReader(`
tenants:
  - id: acme
    active: true
    default_language: de
    languages: [fr]
    channels: {sms: false, push: true}
    critical_channels: [email]
`))
	require.NoError(t, err)

	acme, err := p.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "fr"}, acme.LanguageChain())
	assert.Equal(t, []notifications.Channel{notifications.ChannelEmail}, acme.CriticalChannels)
	assert.False(t, acme.Channels[notifications.ChannelSMS])
	assert.True(t, acme.Channels[notifications.ChannelPush])

	_, err = tenant.LoadYAML(strings.NewReader("tenants:\n  - name: nameless\n"))
	assert.ErrorIs(t, err, tenant.ErrInvalidTenant)
}

func TestCachedProvider(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fail := atomic.Bool{}
	next := tenant.ProviderFunc(func(_ context.Context, id string) (*tenant.Tenant, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, errors.New("directory down")
		}
		return &tenant.Tenant{ID: id, Active: true}, nil
	})

	p := tenant.NewCachedProvider(next, 10, time.Minute)
	ctx := context.Background()

	for range 3 {
		got, err := p.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "acme", got.ID)
	}
	assert.Equal(t, int32(1), calls.Load())

	p.Invalidate("acme")
	fail.Store(true)
	_, err := p.Get(ctx, "acme")
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLanguageChain_Nil(t *testing.T) {
	t.Parallel()
	var tn *tenant.Tenant
	assert.Nil(t, tn.LanguageChain())
}
