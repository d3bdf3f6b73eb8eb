package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	eventKillPrefix  = "notifications.kill."
	tenantKillPrefix = "notifications.kill.tenant."
)

// EventKillFlag is the feature flag that disables dispatch of one event.
func EventKillFlag(eventKey string) string { return eventKillPrefix + eventKey }

// TenantKillFlag is the feature flag that disables dispatch for one tenant.
func TenantKillFlag(tenantID string) string { return tenantKillPrefix + tenantID }

// KillSwitch checks feature flags before any batching or rendering.
// A missing flag means dispatch is allowed.
type KillSwitch struct {
	flags  feature.Provider
	logger *slog.Logger
}

type KillSwitchOption func(*KillSwitch)

func WithKillSwitchLogger(l *slog.Logger) KillSwitchOption {
	return func(k *KillSwitch) {
		k.logger = l
	}
}

// NewKillSwitch returns a kill switch backed by flags. A nil provider
// allows everything.
func NewKillSwitch(flags feature.Provider, opts ...KillSwitchOption) *KillSwitch {
	k := &KillSwitch{flags: flags, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Allowed reports whether eventKey may be dispatched for tenantID.
// Lookup failures other than ErrFlagNotFound are logged and treated as
// allowed.
func (k *KillSwitch) Allowed(ctx context.Context, eventKey, tenantID string) bool {
	if k == nil || k.flags == nil {
		return true
	}
	subject := feature.Subject{TenantID: tenantID}
	if k.killed(ctx, EventKillFlag(eventKey), subject) {
		return false
	}
	if tenantID != "" && k.killed(ctx, TenantKillFlag(tenantID), subject) {
		return false
	}
	return true
}

func (k *KillSwitch) killed(ctx context.Context, name string, s feature.Subject) bool {
	on, err := k.flags.IsEnabled(ctx, name, s)
	if err != nil {
		if !errors.Is(err, feature.ErrFlagNotFound) {
			k.logger.WarnContext(ctx, "kill switch lookup failed",
				slog.String("flag", name),
				logger.Error(err),
			)
		}
		return false
	}
	return on
}
