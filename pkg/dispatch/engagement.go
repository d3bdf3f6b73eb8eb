package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

// UsageEngagement is implemented by *analytics.Aggregator.
type UsageEngagement interface {
	RecordEngagement(ctx context.Context, key analytics.Key, kind analytics.EngagementKind) error
}

// VersionEngagement is implemented by every templates.VersionStore.
type VersionEngagement interface {
	RecordEngagement(ctx context.Context, versionID string, kind analytics.EngagementKind) error
}

// Engagement is a click, open or conversion reported for a delivered
// notification. VersionID is the Rendered.VersionID of the delivery, if
// any.
type Engagement struct {
	Key       analytics.Key
	VersionID string
	Kind      analytics.EngagementKind
}

// TrackEngagement records an engagement in the usage counters and, for
// versioned renders, in the version counters A/B tests are evaluated on.
func (d *Dispatcher) TrackEngagement(ctx context.Context, e Engagement) error {
	kind, err := analytics.ParseEngagementKind(string(e.Kind))
	if err != nil {
		return errors.Join(ErrInvalidEngagement, err)
	}
	if e.Key.EventKey == "" {
		return fmt.Errorf("%w: event key is required", ErrInvalidEngagement)
	}
	e.Key.EventKey = d.registry.Normalize(e.Key.EventKey)
	if e.Key.TemplateType == "" {
		e.Key.TemplateType = templates.TypeDefault
	}

	var errs []error
	if d.usage != nil {
		if err := d.usage.RecordEngagement(ctx, e.Key, kind); err != nil {
			errs = append(errs, fmt.Errorf("usage counters: %w", err))
		}
	}
	if d.versions != nil && e.VersionID != "" {
		if err := d.versions.RecordEngagement(ctx, e.VersionID, kind); err != nil {
			errs = append(errs, fmt.Errorf("version counters: %w", err))
		}
	}
	return errors.Join(errs...)
}
