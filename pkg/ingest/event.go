package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrDecode       = errors.New("failed to decode event")
)

// Emitter is implemented by *dispatch.Dispatcher.
type Emitter interface {
	Emit(ctx context.Context, eventKey string, payload map[string]any, recipient notifications.Recipient, tenantID string, opts ...dispatch.EmitOption) (dispatch.Result, error)
}

// Tracker is implemented by *dispatch.Dispatcher.
type Tracker interface {
	TrackEngagement(ctx context.Context, e dispatch.Engagement) error
}

// Event is the wire form of one emitted event.
type Event struct {
	EventKey       string                  `json:"event_key"`
	TenantID       string                  `json:"tenant_id,omitempty"`
	Recipient      notifications.Recipient `json:"recipient"`
	Payload        map[string]any          `json:"payload,omitempty"`
	Locale         string                  `json:"locale,omitempty"`
	TemplateType   string                  `json:"template_type,omitempty"`
	NotificationID string                  `json:"notification_id,omitempty"`
}

func (e Event) validate() error {
	switch {
	case strings.TrimSpace(e.EventKey) == "":
		return errors.Join(ErrInvalidEvent, errors.New("event_key is required"))
	case strings.TrimSpace(e.Recipient.ID) == "":
		return errors.Join(ErrInvalidEvent, errors.New("recipient.id is required"))
	}
	return nil
}

// Process validates e and emits it.
func Process(ctx context.Context, em Emitter, e Event) (dispatch.Result, error) {
	if err := e.validate(); err != nil {
		return dispatch.Result{}, err
	}
	var opts []dispatch.EmitOption
	if e.Locale != "" {
		opts = append(opts, dispatch.WithLocale(e.Locale))
	}
	if e.TemplateType != "" {
		opts = append(opts, dispatch.WithTemplateType(e.TemplateType))
	}
	if e.NotificationID != "" {
		opts = append(opts, dispatch.WithNotificationID(e.NotificationID))
	}
	return em.Emit(ctx, e.EventKey, e.Payload, e.Recipient, e.TenantID, opts...)
}

// EngagementEvent is the wire form of a click, open or conversion.
type EngagementEvent struct {
	EventKey     string                `json:"event_key"`
	TemplateType string                `json:"template_type,omitempty"`
	Channel      notifications.Channel `json:"channel"`
	TenantID     string                `json:"tenant_id,omitempty"`
	Locale       string                `json:"locale,omitempty"`
	VersionID    string                `json:"version_id,omitempty"`
	Kind         string                `json:"kind"`
}

func (e EngagementEvent) engagement() dispatch.Engagement {
	return dispatch.Engagement{
		Key: analytics.Key{
			EventKey:     e.EventKey,
			TemplateType: e.TemplateType,
			Channel:      e.Channel,
			TenantID:     e.TenantID,
			Locale:       e.Locale,
		},
		VersionID: e.VersionID,
		Kind:      analytics.EngagementKind(e.Kind),
	}
}
