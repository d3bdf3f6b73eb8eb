package feature_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/feature"
)

func TestBucket(t *testing.T) {
	t.Parallel()

	first := feature.Bucket("user-42", "welcome")
	for range 1000 {
		assert.Equal(t, first, feature.Bucket("user-42", "welcome"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 100)

	// A different salt reshuffles; across many ids at least one must move.
	moved := false
	for i := range 50 {
		id := "u" + strings.Repeat("x", i)
		if feature.Bucket(id, "a") != feature.Bucket(id, "b") {
			moved = true
			break
		}
	}
	assert.True(t, moved)
}

func TestTargetedStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pct := func(p int) *int { return &p }

	tests := []struct {
		name     string
		strategy feature.TargetedStrategy
		subject  feature.Subject
		want     bool
		wantErr  bool
	}{
		{"empty criteria", feature.TargetedStrategy{}, feature.Subject{RecipientID: "u1"}, false, true},
		{"deny wins over allow", feature.TargetedStrategy{AllowList: []string{"u1"}, DenyList: []string{"u1"}}, feature.Subject{RecipientID: "u1"}, false, false},
		{"deny without id fails closed", feature.TargetedStrategy{DenyList: []string{"u9"}, TenantIDs: []string{"t1"}}, feature.Subject{TenantID: "t1"}, false, false},
		{"allow list", feature.TargetedStrategy{AllowList: []string{"u1"}}, feature.Subject{RecipientID: "u1"}, true, false},
		{"tenant", feature.TargetedStrategy{TenantIDs: []string{"acme"}}, feature.Subject{TenantID: "acme"}, true, false},
		{"group", feature.TargetedStrategy{Groups: []string{"beta"}}, feature.Subject{Groups: []string{"staff", "beta"}}, true, false},
		{"zero percent", feature.TargetedStrategy{Percentage: pct(0)}, feature.Subject{RecipientID: "u1"}, false, false},
		{"full percent", feature.TargetedStrategy{Percentage: pct(100)}, feature.Subject{}, true, false},
		{"percentage needs id", feature.TargetedStrategy{Percentage: pct(50)}, feature.Subject{}, false, false},
		{"bad percentage", feature.TargetedStrategy{Percentage: pct(101)}, feature.Subject{RecipientID: "u1"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.strategy.Evaluate(ctx, tt.subject)
			if tt.wantErr {
				assert.ErrorIs(t, err, feature.ErrInvalidStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetedStrategy_PercentageMatchesBucket(t *testing.T) {
	t.Parallel()

	p := 30
	s := feature.TargetedStrategy{Percentage: &p, Salt: "rollout"}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		got, err := s.Evaluate(context.Background(), feature.Subject{RecipientID: id})
		require.NoError(t, err)
		assert.Equal(t, feature.Bucket(id, "rollout") < 30, got, id)
	}
}

func TestCompositeStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	on, off := feature.AlwaysStrategy{Value: true}, feature.AlwaysStrategy{Value: false}

	ok, err := feature.NewAndStrategy(on, off).Evaluate(ctx, feature.Subject{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = feature.NewOrStrategy(off, on).Evaluate(ctx, feature.Subject{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = feature.CompositeStrategy{Strategies: []feature.Strategy{on}, Operator: "xor"}.Evaluate(ctx, feature.Subject{})
	assert.ErrorIs(t, err, feature.ErrInvalidStrategy)
}

func TestMemoryProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := feature.NewMemoryProvider(
		&feature.Flag{Name: "b", Enabled: true, Tags: []string{"kill"}},
		&feature.Flag{Name: "a", Enabled: false},
		&feature.Flag{Name: "c", Enabled: true, Strategy: feature.TargetedStrategy{TenantIDs: []string{"acme"}}},
	)
	require.NoError(t, err)

	on, err := p.IsEnabled(ctx, "b", feature.Subject{})
	require.NoError(t, err)
	assert.True(t, on)

	on, err = p.IsEnabled(ctx, "a", feature.Subject{})
	require.NoError(t, err)
	assert.False(t, on)

	on, err = p.IsEnabled(ctx, "c", feature.Subject{TenantID: "other"})
	require.NoError(t, err)
	assert.False(t, on)

	_, err = p.IsEnabled(ctx, "missing", feature.Subject{})
	assert.ErrorIs(t, err, feature.ErrFlagNotFound)

	all, err := p.ListFlags(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)

	tagged, err := p.ListFlags(ctx, "kill")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	tagged[0].Tags[0] = "mutated"
	again, _ := p.GetFlag(ctx, "b")
	assert.Equal(t, "kill", again.Tags[0])

	require.NoError(t, p.DeleteFlag(ctx, "b"))
	assert.ErrorIs(t, p.DeleteFlag(ctx, "b"), feature.ErrFlagNotFound)
	assert.ErrorIs(t, p.SetFlag(ctx, &feature.Flag{}), feature.ErrInvalidFlag)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := feature.ParseFlags(strings.NewReader(`
flags:
  - name: notifications.kill.order.shipped
    enabled: true
  - name: notifications.kill.tenant.acme
    enabled: true
    target:
      recipient_ids: [u1]
`))
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Nil(t, flags[0].Strategy)
	require.NotNil(t, flags[1].Strategy)

	ok, err := flags[1].Strategy.Evaluate(context.Background(), feature.Subject{RecipientID: "u1"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = feature.ParseFlags(strings.NewReader("flags:\n  - enabled: true\n"))
	assert.ErrorIs(t, err, feature.ErrInvalidFlag)

	empty, err := feature.ParseFlags(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
