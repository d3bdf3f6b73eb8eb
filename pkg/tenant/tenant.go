package tenant

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Tenant is the notification-relevant view of a tenant from the directory.
type Tenant struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Active          bool   `json:"active" yaml:"active"`
	DefaultLanguage string `json:"default_language,omitempty" yaml:"default_language,omitempty"`

	// Languages are extra languages tried after DefaultLanguage.
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// Channels overrides global channel toggles per channel. Channels not
	// listed keep the global setting.
	Channels map[notifications.Channel]bool `json:"channels,omitempty" yaml:"channels,omitempty"`

	// CriticalChannels receive critical events that would otherwise reach
	// no channel at all.
	CriticalChannels []notifications.Channel `json:"critical_channels,omitempty" yaml:"critical_channels,omitempty"`
}

// LanguageChain returns DefaultLanguage followed by Languages.
func (t *Tenant) LanguageChain() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, 1+len(t.Languages))
	if t.DefaultLanguage != "" {
		out = append(out, t.DefaultLanguage)
	}
	return append(out, t.Languages...)
}

// Provider loads tenants from the directory.
type Provider interface {
	// Get returns ErrTenantNotFound when no tenant has the id.
	Get(ctx context.Context, id string) (*Tenant, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) (*Tenant, error)

func (f ProviderFunc) Get(ctx context.Context, id string) (*Tenant, error) {
	return f(ctx, id)
}
