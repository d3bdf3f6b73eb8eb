package registry

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Scope decides whose channel settings apply to an event.
type Scope string

const (
	// ScopeSystemwide events use global channel defaults only.
	ScopeSystemwide Scope = "systemwide"
	// ScopeTenant events apply tenant channel overrides.
	ScopeTenant Scope = "tenant"
)

// ParseScope accepts "website" as a legacy spelling of tenant.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ScopeTenant), "website":
		return ScopeTenant, nil
	case string(ScopeSystemwide):
		return ScopeSystemwide, nil
	}
	return ScopeTenant, fmt.Errorf("invalid scope %q", s)
}

// DigestRule batches an event per group for Delay before sending.
type DigestRule struct {
	Delay   time.Duration `json:"delay"`
	GroupBy string        `json:"group_by"`
}

// EventDefinition is the resolved, immutable policy for one event key.
type EventDefinition struct {
	Key             string                   `json:"key"`
	Description     string                   `json:"description,omitempty"`
	Priority        notifications.Priority   `json:"priority"`
	Scope           Scope                    `json:"scope"`
	Digest          *DigestRule              `json:"digest,omitempty"`
	ForcedChannels  notifications.ChannelSet `json:"forced_channels"`
	DefaultChannels notifications.ChannelSet `json:"default_channels"`
	Filters         map[string][]string      `json:"filters,omitempty"`
}

// IsDigestable reports whether the event is batched.
func (d EventDefinition) IsDigestable() bool {
	return d.Digest != nil
}

// Allows reports whether a recipient with attrs passes every filter: for
// each filter key the recipient must hold at least one listed value.
func (d EventDefinition) Allows(attrs map[string][]string) bool {
	for key, allowed := range d.Filters {
		if len(allowed) == 0 {
			continue
		}
		if !slices.ContainsFunc(attrs[key], func(v string) bool { return slices.Contains(allowed, v) }) {
			return false
		}
	}
	return true
}
