package notifications

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Channel identifies an outbound delivery transport.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
	ChannelInApp   Channel = "in_app"
	ChannelSSE     Channel = "sse"
	ChannelWS      Channel = "ws"
)

// Channels returns every known channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook, ChannelInApp, ChannelSSE, ChannelWS}
}

// ParseChannel converts a config label into a Channel.
// "inapp" and "websocket" are accepted as legacy spellings.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook, ChannelInApp, ChannelSSE, ChannelWS:
		return c, nil
	case "inapp":
		return ChannelInApp, nil
	case "websocket":
		return ChannelWS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// IsRealtime reports whether the channel is served from an open client connection.
func (c Channel) IsRealtime() bool {
	return c == ChannelInApp || c == ChannelSSE || c == ChannelWS
}

// ChannelSet is an unordered set of channels. The zero value is an empty set
// ready to read; use NewChannelSet or Add to populate it.
type ChannelSet map[Channel]struct{}

// NewChannelSet builds a set from the given channels.
func NewChannelSet(channels ...Channel) ChannelSet {
	s := make(ChannelSet, len(channels))
	for _, c := range channels {
		s[c] = struct{}{}
	}
	return s
}

func (s ChannelSet) Has(c Channel) bool {
	_, ok := s[c]
	return ok
}

// Add inserts channels into the set. Calling Add on a nil set panics.
func (s ChannelSet) Add(channels ...Channel) {
	for _, c := range channels {
		s[c] = struct{}{}
	}
}

func (s ChannelSet) Len() int { return len(s) }

func (s ChannelSet) Clone() ChannelSet {
	out := make(ChannelSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Intersect returns channels present in both sets.
func (s ChannelSet) Intersect(other ChannelSet) ChannelSet {
	out := make(ChannelSet)
	for c := range s {
		if other.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Union returns channels present in either set.
func (s ChannelSet) Union(other ChannelSet) ChannelSet {
	out := s.Clone()
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Sorted returns the members ordered by the Channels() order, unknown
// channels last in lexical order.
func (s ChannelSet) Sorted() []Channel {
	out := make([]Channel, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	order := Channels()
	slices.SortFunc(out, func(a, b Channel) int {
		ia, ib := slices.Index(order, a), slices.Index(order, b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		}
		return strings.Compare(string(a), string(b))
	})
	return out
}

// MarshalJSON encodes the set as a sorted list. A nil set encodes as null
// so "no preference" and "opted out of everything" survive a round trip.
func (s ChannelSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.Sorted())
}

func (s *ChannelSet) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	set := make(ChannelSet, len(labels))
	for _, l := range labels {
		c, err := ParseChannel(l)
		if err != nil {
			return err
		}
		set[c] = struct{}{}
	}
	*s = set
	return nil
}
