package tenant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryProvider is an in-memory Provider, usually seeded from a YAML file.
type MemoryProvider struct {
	tenants map[string]*Tenant
	mu      sync.RWMutex
}

func NewMemoryProvider(tenants ...*Tenant) *MemoryProvider {
	p := &MemoryProvider{tenants: make(map[string]*Tenant, len(tenants))}
	for _, t := range tenants {
		p.Put(t)
	}
	return p
}

// Get returns a copy of the tenant.
func (p *MemoryProvider) Get(_ context.Context, id string) (*Tenant, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return clone(t), nil
}

// Put adds or replaces a tenant. Nil tenants and empty ids are ignored.
func (p *MemoryProvider) Put(t *Tenant) {
	if t == nil || t.ID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[t.ID] = clone(t)
}

// LoadYAML reads a list of tenants:
//
//	tenants:
//	  - id: acme
//	    active: true
//	    default_language: de
//	    channels: {sms: false}
//	    critical_channels: [email]
func LoadYAML(r io.Reader) (*MemoryProvider, error) {
	var doc struct {
		Tenants []*Tenant `yaml:"tenants"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidTenant, err)
	}
	for i, t := range doc.Tenants {
		if t == nil || t.ID == "" {
			return nil, fmt.Errorf("%w: tenant #%d has no id", ErrInvalidTenant, i)
		}
	}
	return NewMemoryProvider(doc.Tenants...), nil
}

func clone(t *Tenant) *Tenant {
	c := *t
	c.Languages = slices.Clone(t.Languages)
	c.CriticalChannels = slices.Clone(t.CriticalChannels)
	c.Channels = maps.Clone(t.Channels)
	return &c
}
