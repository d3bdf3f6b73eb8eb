package templates

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// TemplateRef identifies the template a version belongs to.
type TemplateRef struct {
	EventKey     string
	Channel      notifications.Channel
	TemplateType string
}

func (v TemplateVersion) Ref() TemplateRef {
	return TemplateRef{EventKey: v.EventKey, Channel: v.Channel, TemplateType: v.TemplateType}
}

func (t ABTest) Ref() TemplateRef {
	return TemplateRef{EventKey: t.EventKey, Channel: t.Channel, TemplateType: t.TemplateType}
}

// VersionStore persists versions, tests and their counters. Counter
// updates must be atomic per version.
type VersionStore interface {
	CreateVersion(ctx context.Context, v TemplateVersion) error
	GetVersion(ctx context.Context, id string) (TemplateVersion, error)
	ListVersions(ctx context.Context, ref TemplateRef) ([]TemplateVersion, error)
	UpdateVersion(ctx context.Context, v TemplateVersion) error

	// SetDefault marks id as the only default version of its template.
	SetDefault(ctx context.Context, id string) error

	// RecordRender bumps render counters and folds elapsed into the online
	// mean render time.
	RecordRender(ctx context.Context, id string, success bool, elapsed time.Duration) error
	RecordEngagement(ctx context.Context, id string, kind analytics.EngagementKind) error

	CreateTest(ctx context.Context, t ABTest) error
	GetTest(ctx context.Context, id string) (ABTest, error)
	ListTests(ctx context.Context, ref TemplateRef) ([]ABTest, error)
	UpdateTest(ctx context.Context, t ABTest) error
}

// TranslationStore serves template content.
type TranslationStore interface {
	// FindTranslations returns every translation of the template in any of
	// languages, across tenants and versions. Selection is up to the caller.
	FindTranslations(ctx context.Context, eventKey, templateType string, languages []string) ([]Translation, error)
	PutTranslation(ctx context.Context, t Translation) error
}
