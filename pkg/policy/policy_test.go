package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/policy"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

var (
	email = notifications.ChannelEmail
	sms   = notifications.ChannelSMS
	push  = notifications.ChannelPush
	inApp = notifications.ChannelInApp
)

func newPolicy() *policy.Policy {
	return policy.NewWithDefaults(
		map[notifications.Channel]bool{email: true, inApp: true, push: true, sms: false},
		notifications.NewChannelSet(email),
	)
}

func TestEnabledChannels(t *testing.T) {
	t.Parallel()
	p := newPolicy()

	tests := []struct {
		name   string
		tenant *tenant.Tenant
		want   []notifications.Channel
	}{
		{"no tenant", nil, []notifications.Channel{email, push, inApp}},
		{"tenant without overrides", &tenant.Tenant{ID: "t1"}, []notifications.Channel{email, push, inApp}},
		{
			"overrides win per channel",
			&tenant.Tenant{ID: "t1", Channels: map[notifications.Channel]bool{sms: true, push: false}},
			[]notifications.Channel{email, sms, inApp},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.EnabledChannels(tt.tenant).Sorted())
		})
	}
}

func TestEmptyGlobalEnablesAll(t *testing.T) {
	t.Parallel()
	p := policy.NewWithDefaults(nil, nil)
	assert.Equal(t, notifications.Channels(), p.GlobalChannels().Sorted())
}

func TestResolveTargets(t *testing.T) {
	t.Parallel()
	p := newPolicy()
	noEmail := &tenant.Tenant{ID: "t1", Channels: map[notifications.Channel]bool{email: false}}

	tests := []struct {
		name   string
		def    registry.EventDefinition
		tenant *tenant.Tenant
		prefs  notifications.ChannelSet
		want   []notifications.Channel
	}{
		{
			name:  "preferences intersect enabled",
			def:   registry.EventDefinition{Priority: notifications.PriorityNormal, Scope: registry.ScopeTenant},
			prefs: notifications.NewChannelSet(email, sms),
			want:  []notifications.Channel{email},
		},
		{
			name: "forced email reaches user who opted out of email",
			def: registry.EventDefinition{
				Priority:       notifications.PriorityHigh,
				Scope:          registry.ScopeTenant,
				ForcedChannels: notifications.NewChannelSet(email),
			},
			tenant: noEmail,
			prefs:  notifications.NewChannelSet(inApp),
			want:   []notifications.Channel{email, inApp},
		},
		{
			name: "no preferences use event defaults",
			def: registry.EventDefinition{
				Scope:           registry.ScopeTenant,
				DefaultChannels: notifications.NewChannelSet(push, sms),
			},
			want: []notifications.Channel{push},
		},
		{
			name:  "opted out of everything",
			def:   registry.EventDefinition{Scope: registry.ScopeTenant, DefaultChannels: notifications.NewChannelSet(email)},
			prefs: notifications.NewChannelSet(),
			want:  []notifications.Channel{},
		},
		{
			name:   "systemwide ignores tenant overrides",
			def:    registry.EventDefinition{Scope: registry.ScopeSystemwide},
			tenant: noEmail,
			prefs:  notifications.NewChannelSet(email),
			want:   []notifications.Channel{email},
		},
		{
			name:   "critical falls back to tenant critical channels",
			def:    registry.EventDefinition{Priority: notifications.PriorityCritical, Scope: registry.ScopeTenant},
			tenant: &tenant.Tenant{ID: "t1", CriticalChannels: []notifications.Channel{sms}},
			prefs:  notifications.NewChannelSet(),
			want:   []notifications.Channel{sms},
		},
		{
			name:  "critical falls back to global critical channels",
			def:   registry.EventDefinition{Priority: notifications.PriorityCritical, Scope: registry.ScopeTenant},
			prefs: notifications.NewChannelSet(),
			want:  []notifications.Channel{email},
		},
		{
			name:  "high priority does not fall back",
			def:   registry.EventDefinition{Priority: notifications.PriorityHigh, Scope: registry.ScopeTenant},
			prefs: notifications.NewChannelSet(),
			want:  []notifications.Channel{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.ResolveTargets(tt.def, tt.tenant, tt.prefs)
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestNewFromRegistry(t *testing.T) {
	t.Parallel()
	data := `{"version":1,"defaults":{"channels":{"email":true,"sms":false},"critical_channels":["sms"]},"events":{"a":{"priority":"critical"}}}`
	reg, err := registry.Load(context.Background(), registry.BytesSource{Data: []byte(data), Format: registry.FormatJSON})
	require.NoError(t, err)

	p := policy.New(reg)
	assert.Equal(t, []notifications.Channel{email}, p.GlobalChannels().Sorted())

	def := reg.ResolveOrDefault("a")
	assert.Equal(t, []notifications.Channel{sms}, p.ResolveTargets(def, nil, notifications.NewChannelSet()).Sorted())
}

func TestKillSwitch(t *testing.T) {
	t.Parallel()
	flags, err := feature.NewMemoryProvider(
		&feature.Flag{Name: policy.EventKillFlag("order.completed"), Enabled: true},
		&feature.Flag{Name: policy.TenantKillFlag("t-bad"), Enabled: true},
		&feature.Flag{Name: policy.EventKillFlag("user.joined"), Enabled: false},
	)
	require.NoError(t, err)
	ks := policy.NewKillSwitch(flags)
	ctx := context.Background()

	assert.False(t, ks.Allowed(ctx, "order.completed", "t1"))
	assert.False(t, ks.Allowed(ctx, "invoice.paid", "t-bad"))
	assert.True(t, ks.Allowed(ctx, "user.joined", "t1"))
	assert.True(t, ks.Allowed(ctx, "invoice.paid", ""))

	var nilSwitch *policy.KillSwitch
	assert.True(t, nilSwitch.Allowed(ctx, "order.completed", "t1"))
}
