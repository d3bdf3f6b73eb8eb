package notifications_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestParseChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want notifications.Channel
	}{
		{"email", notifications.ChannelEmail},
		{" SMS ", notifications.ChannelSMS},
		{"inapp", notifications.ChannelInApp},
		{"in_app", notifications.ChannelInApp},
		{"websocket", notifications.ChannelWS},
	}
	for _, tt := range tests {
		got, err := notifications.ParseChannel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := notifications.ParseChannel("fax")
	assert.ErrorIs(t, err, notifications.ErrUnknownChannel)
}

func TestChannelSet(t *testing.T) {
	t.Parallel()

	a := notifications.NewChannelSet(notifications.ChannelSMS, notifications.ChannelEmail)
	b := notifications.NewChannelSet(notifications.ChannelEmail, notifications.ChannelPush)

	assert.Equal(t, []notifications.Channel{notifications.ChannelEmail}, a.Intersect(b).Sorted())
	assert.Equal(t,
		[]notifications.Channel{notifications.ChannelEmail, notifications.ChannelSMS, notifications.ChannelPush},
		a.Union(b).Sorted(),
	)
	assert.Equal(t, 2, a.Len(), "union must not mutate the receiver")

	var nilSet notifications.ChannelSet
	assert.False(t, nilSet.Has(notifications.ChannelEmail))
	assert.Equal(t, 0, nilSet.Intersect(a).Len())
}

func TestChannelSet_JSON(t *testing.T) {
	t.Parallel()

	t.Run("sorted list", func(t *testing.T) {
		data, err := json.Marshal(notifications.NewChannelSet(notifications.ChannelWS, notifications.ChannelEmail))
		require.NoError(t, err)
		assert.JSONEq(t, `["email","ws"]`, string(data))
	})

	t.Run("nil and empty stay distinct", func(t *testing.T) {
		var r notifications.Recipient
		data, err := json.Marshal(r)
		require.NoError(t, err)
		var back notifications.Recipient
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Nil(t, back.PreferredChannels)

		r.PreferredChannels = notifications.NewChannelSet()
		data, err = json.Marshal(r)
		require.NoError(t, err)
		back = notifications.Recipient{}
		require.NoError(t, json.Unmarshal(data, &back))
		assert.NotNil(t, back.PreferredChannels)
		assert.Equal(t, 0, back.PreferredChannels.Len())
	})

	t.Run("unknown label", func(t *testing.T) {
		var s notifications.ChannelSet
		err := json.Unmarshal([]byte(`["pigeon"]`), &s)
		assert.ErrorIs(t, err, notifications.ErrUnknownChannel)
	})
}

func TestPriority(t *testing.T) {
	t.Parallel()

	p, err := notifications.ParsePriority("Critical")
	require.NoError(t, err)
	assert.Equal(t, notifications.PriorityCritical, p)
	assert.True(t, p > notifications.PriorityHigh)

	_, err = notifications.ParsePriority("urgent")
	assert.ErrorIs(t, err, notifications.ErrInvalidPriority)

	var out struct {
		P notifications.Priority `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":"high"}`), &out))
	assert.Equal(t, notifications.PriorityHigh, out.P)
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	r := notifications.Recipient{
		ID:         "u1",
		Roles:      []string{"admin"},
		Addresses:  map[notifications.Channel]string{notifications.ChannelEmail: "u1@example.com"},
		Attributes: map[string][]string{"plan": {"pro"}},
	}

	assert.Equal(t, "u1@example.com", r.Address(notifications.ChannelEmail))
	assert.Equal(t, "", r.Address(notifications.ChannelSMS))
	assert.Equal(t, "u1", r.Address(notifications.ChannelInApp))

	attrs := r.FilterAttributes()
	assert.Equal(t, []string{"admin"}, attrs["roles"])
	assert.Equal(t, []string{"pro"}, attrs["plan"])
}
