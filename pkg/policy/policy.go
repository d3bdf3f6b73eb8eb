package policy

import (
	"maps"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// Policy resolves which channels a notification goes out on.
type Policy struct {
	global   map[notifications.Channel]bool
	critical notifications.ChannelSet
}

// New builds a policy from the registry's global channel toggles and
// critical fallback channels.
func New(reg *registry.Registry) *Policy {
	return NewWithDefaults(reg.GlobalChannels(), reg.CriticalChannels())
}

// NewWithDefaults builds a policy from explicit global settings. An empty
// global map enables every known channel; otherwise unlisted channels are
// off.
func NewWithDefaults(global map[notifications.Channel]bool, critical notifications.ChannelSet) *Policy {
	g := maps.Clone(global)
	if len(g) == 0 {
		g = make(map[notifications.Channel]bool)
		for _, c := range notifications.Channels() {
			g[c] = true
		}
	}
	return &Policy{global: g, critical: critical.Clone()}
}

// GlobalChannels returns the channels enabled without any tenant override.
func (p *Policy) GlobalChannels() notifications.ChannelSet {
	return p.merge(nil)
}

// EnabledChannels merges the global toggles with the tenant's overrides.
// Overrides win per channel; channels the tenant does not mention keep the
// global setting.
func (p *Policy) EnabledChannels(t *tenant.Tenant) notifications.ChannelSet {
	if t == nil {
		return p.merge(nil)
	}
	return p.merge(t.Channels)
}

func (p *Policy) merge(overrides map[notifications.Channel]bool) notifications.ChannelSet {
	merged := maps.Clone(p.global)
	for c, on := range overrides {
		merged[c] = on
	}
	out := notifications.NewChannelSet()
	for c, on := range merged {
		if on {
			out.Add(c)
		}
	}
	return out
}

// ResolveTargets picks the channels for one recipient:
//
//  1. preferences ∩ enabled channels, where a recipient without preferences
//     uses the event's default channels and systemwide events ignore tenant
//     overrides;
//  2. plus forced channels, regardless of any opt-out;
//  3. if still empty and the event is critical, the tenant's critical
//     channels, or the global ones when the tenant lists none.
func (p *Policy) ResolveTargets(def registry.EventDefinition, t *tenant.Tenant, prefs notifications.ChannelSet) notifications.ChannelSet {
	enabled := p.EnabledChannels(t)
	if def.Scope == registry.ScopeSystemwide {
		enabled = p.GlobalChannels()
	}

	wanted := prefs
	if wanted == nil {
		wanted = def.DefaultChannels
	}

	targets := wanted.Intersect(enabled).Union(def.ForcedChannels)
	if targets.Len() > 0 || def.Priority != notifications.PriorityCritical {
		return targets
	}

	if t != nil && len(t.CriticalChannels) > 0 {
		return notifications.NewChannelSet(t.CriticalChannels...)
	}
	return p.critical.Clone()
}
