package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Registry is an immutable table of event definitions. Build it with New or
// Load and share it by pointer; nothing mutates it after construction.
type Registry struct {
	doc      Document
	events   map[string]EventDefinition
	aliases  map[string]string
	fallback EventDefinition
	global   map[notifications.Channel]bool
	critical notifications.ChannelSet
	defects  []Defect
}

// Load fetches, parses and validates a document. Any defect rejects the
// whole document; no partially built registry is returned.
func Load(ctx context.Context, src Source) (*Registry, error) {
	data, format, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src, err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	r := New(doc)
	if defects := r.ValidateAll(); len(defects) > 0 {
		return nil, &InvalidConfigError{Defects: defects}
	}
	return r, nil
}

// New builds a registry from a parsed document. Invalid values fall back to
// defaults and are reported by ValidateAll.
func New(doc Document) *Registry {
	r := &Registry{
		doc:     doc,
		events:  make(map[string]EventDefinition, len(doc.Events)),
		aliases: make(map[string]string, len(doc.Aliases)),
		global:  make(map[notifications.Channel]bool, len(doc.Defaults.Channels)),
	}

	r.fallback = EventDefinition{
		Priority:        notifications.PriorityNormal,
		Scope:           ScopeTenant,
		ForcedChannels:  notifications.NewChannelSet(),
		DefaultChannels: r.channelSet("defaults", "default_channels", doc.Defaults.DefaultChannels),
	}
	if doc.Defaults.Priority != "" {
		if p, err := notifications.ParsePriority(doc.Defaults.Priority); err != nil {
			r.defect("defaults", "priority", err.Error())
		} else {
			r.fallback.Priority = p
		}
	}
	if s, err := ParseScope(doc.Defaults.Scope); err != nil {
		r.defect("defaults", "scope", err.Error())
	} else {
		r.fallback.Scope = s
	}
	for label, on := range doc.Defaults.Channels {
		c, err := notifications.ParseChannel(label)
		if err != nil {
			r.defect("defaults", "channels", err.Error())
			continue
		}
		r.global[c] = on
	}
	r.critical = r.channelSet("defaults", "critical_channels", doc.Defaults.CriticalChannels)

	for _, rawKey := range slices.Sorted(maps.Keys(doc.Events)) {
		key := canonicalKey(rawKey)
		if key == "" {
			r.defect(rawKey, "key", "event key is empty")
			continue
		}
		if _, dup := r.events[key]; dup {
			r.defect(key, "key", fmt.Sprintf("duplicate event key %q after normalization", rawKey))
			continue
		}
		r.events[key] = r.buildEvent(key, doc.Events[rawKey])
	}

	for _, rawAlias := range slices.Sorted(maps.Keys(doc.Aliases)) {
		alias, target := canonicalKey(rawAlias), canonicalKey(doc.Aliases[rawAlias])
		if _, shadow := r.events[alias]; shadow {
			r.defect(alias, "alias", "alias shadows a canonical event key")
			continue
		}
		r.aliases[alias] = target
	}
	for _, alias := range slices.Sorted(maps.Keys(r.aliases)) {
		final := r.Normalize(alias)
		if _, ok := r.events[final]; !ok {
			if r.inCycle(alias) {
				r.defect(alias, "alias", "alias chain forms a cycle")
			} else {
				r.defect(alias, "alias", fmt.Sprintf("alias points to missing event %q", final))
			}
		}
	}
	return r
}

func (r *Registry) buildEvent(key string, e EventDoc) EventDefinition {
	def := EventDefinition{
		Key:             key,
		Description:     e.Description,
		Priority:        r.fallback.Priority,
		Scope:           r.fallback.Scope,
		ForcedChannels:  r.channelSet(key, "forced_channels", e.ForcedChannels),
		DefaultChannels: r.fallback.DefaultChannels.Clone(),
	}
	if e.Priority != "" {
		if p, err := notifications.ParsePriority(e.Priority); err != nil {
			r.defect(key, "priority", err.Error())
		} else {
			def.Priority = p
		}
	}
	if e.Scope != "" {
		if s, err := ParseScope(e.Scope); err != nil {
			r.defect(key, "scope", err.Error())
		} else {
			def.Scope = s
		}
	}
	if e.DefaultChannels != nil {
		def.DefaultChannels = r.channelSet(key, "default_channels", e.DefaultChannels)
	}
	if e.Digest != nil {
		if e.Digest.DelayMinutes < 0 {
			r.defect(key, "digest.delay_minutes", fmt.Sprintf("delay must be >= 0, got %d", e.Digest.DelayMinutes))
		}
		groupBy := strings.TrimSpace(e.Digest.GroupBy)
		if groupBy == "" {
			r.defect(key, "digest.group_by", "group_by is required for digestable events")
		}
		def.Digest = &DigestRule{
			Delay:   time.Duration(max(e.Digest.DelayMinutes, 0)) * time.Minute,
			GroupBy: groupBy,
		}
	}
	if len(e.Filters) > 0 {
		def.Filters = make(map[string][]string, len(e.Filters))
		for k, v := range e.Filters {
			def.Filters[k] = slices.Clone(v)
		}
	}
	return def
}

func (r *Registry) channelSet(key, field string, labels []string) notifications.ChannelSet {
	set := notifications.NewChannelSet()
	for _, l := range labels {
		c, err := notifications.ParseChannel(l)
		if err != nil {
			r.defect(key, field, err.Error())
			continue
		}
		set.Add(c)
	}
	return set
}

func (r *Registry) defect(key, field, msg string) {
	r.defects = append(r.defects, Defect{Key: key, Field: field, Message: msg})
}

func canonicalKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Normalize maps a key to its canonical form: lower-cased, trimmed and
// resolved through the alias table. It is idempotent. Alias cycles resolve
// to the lexically smallest key in the cycle.
func (r *Registry) Normalize(key string) string {
	k := canonicalKey(key)
	seen := map[string]bool{}
	for {
		if _, ok := r.events[k]; ok {
			return k
		}
		next, ok := r.aliases[k]
		if !ok {
			return k
		}
		if seen[k] {
			return minInCycle(r.aliases, k)
		}
		seen[k] = true
		k = next
	}
}

func minInCycle(aliases map[string]string, start string) string {
	least := start
	for k := aliases[start]; k != start; k = aliases[k] {
		least = min(least, k)
	}
	return least
}

func (r *Registry) inCycle(alias string) bool {
	seen := map[string]bool{}
	for k := alias; ; {
		if _, ok := r.events[k]; ok {
			return false
		}
		next, ok := r.aliases[k]
		if !ok {
			return false
		}
		if seen[k] {
			return true
		}
		seen[k] = true
		k = next
	}
}

// Resolve returns the definition for key after normalization.
// Unknown keys yield *UnknownEventError.
func (r *Registry) Resolve(key string) (EventDefinition, error) {
	k := r.Normalize(key)
	def, ok := r.events[k]
	if !ok {
		return EventDefinition{}, &UnknownEventError{Key: k}
	}
	return def.clone(), nil
}

// MustResolve is the hard lookup used by admin tooling. It behaves like
// Resolve; the name marks call sites where an unknown key is a defect.
func (r *Registry) MustResolve(key string) (EventDefinition, error) {
	return r.Resolve(key)
}

// ResolveOrDefault is the dispatch-path lookup: unknown keys get the
// document defaults instead of an error.
func (r *Registry) ResolveOrDefault(key string) EventDefinition {
	if def, err := r.Resolve(key); err == nil {
		return def
	}
	def := r.fallback.clone()
	def.Key = r.Normalize(key)
	return def
}

// Has reports whether key resolves to a registered event.
func (r *Registry) Has(key string) bool {
	_, ok := r.events[r.Normalize(key)]
	return ok
}

// GlobalChannels returns the global per-channel toggles.
func (r *Registry) GlobalChannels() map[notifications.Channel]bool {
	return maps.Clone(r.global)
}

// CriticalChannels is the global fallback for critical events.
func (r *Registry) CriticalChannels() notifications.ChannelSet {
	return r.critical.Clone()
}

// Events lists every definition ordered by key.
func (r *Registry) Events() []EventDefinition {
	out := make([]EventDefinition, 0, len(r.events))
	for _, k := range slices.Sorted(maps.Keys(r.events)) {
		out = append(out, r.events[k].clone())
	}
	return out
}

// Aliases returns the normalized alias table.
func (r *Registry) Aliases() map[string]string {
	return maps.Clone(r.aliases)
}

// Document returns the document the registry was built from.
func (r *Registry) Document() Document {
	return r.doc
}

// RawJSON returns the loaded document as indented JSON.
func (r *Registry) RawJSON() ([]byte, error) {
	return r.doc.JSON()
}

func (d EventDefinition) clone() EventDefinition {
	out := d
	out.ForcedChannels = d.ForcedChannels.Clone()
	out.DefaultChannels = d.DefaultChannels.Clone()
	if d.Digest != nil {
		rule := *d.Digest
		out.Digest = &rule
	}
	if d.Filters != nil {
		out.Filters = make(map[string][]string, len(d.Filters))
		for k, v := range d.Filters {
			out.Filters[k] = slices.Clone(v)
		}
	}
	return out
}
