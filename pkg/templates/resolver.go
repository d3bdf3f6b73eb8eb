package templates

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/i18n"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Normalizer canonicalizes event keys. *registry.Registry and
// *registry.Holder implement it.
type Normalizer interface {
	Normalize(key string) string
}

// UsageRecorder receives one call per render attempt.
type UsageRecorder interface {
	RecordRender(ctx context.Context, key analytics.Key, success bool, elapsed time.Duration) error
}

// RenderRequest is everything needed to render one notification.
type RenderRequest struct {
	EventKey        string
	Channel         notifications.Channel
	TemplateType    string
	Recipient       notifications.Recipient
	TenantID        string
	TenantLanguages []string
	Payload         map[string]any
}

// Resolver selects a version and language for a notification and renders
// it. It is safe for concurrent use.
type Resolver struct {
	translations TranslationStore
	versions     VersionStore
	normalizer   Normalizer
	usage        UsageRecorder
	now          func() time.Time
	logger       *slog.Logger
}

type ResolverOption func(*Resolver)

func WithNormalizer(n Normalizer) ResolverOption {
	return func(r *Resolver) { r.normalizer = n }
}

// WithVersionStore enables versioning and A/B tests. Without it every
// render uses unversioned translations.
func WithVersionStore(s VersionStore) ResolverOption {
	return func(r *Resolver) { r.versions = s }
}

func WithUsageRecorder(u UsageRecorder) ResolverOption {
	return func(r *Resolver) { r.usage = u }
}

func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(translations TranslationStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		translations: translations,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type selection struct {
	version TemplateVersion
	testID  string
	variant Variant
}

// Render resolves and renders one notification. Every attempt is counted,
// failures included. Failures are *NoTranslationError or *RenderError.
func (r *Resolver) Render(ctx context.Context, req RenderRequest) (Rendered, error) {
	start := r.now()
	key := strings.ToLower(strings.TrimSpace(req.EventKey))
	if r.normalizer != nil {
		key = r.normalizer.Normalize(req.EventKey)
	}
	tmplType := req.TemplateType
	if tmplType == "" {
		tmplType = TypeDefault
	}
	ref := TemplateRef{EventKey: key, Channel: req.Channel, TemplateType: tmplType}

	sel := r.selectVersion(ctx, ref, req.Recipient.ID, start)
	out := Rendered{
		EventKey:     key,
		Channel:      req.Channel,
		TemplateType: tmplType,
		VersionID:    sel.version.ID,
		Version:      sel.version.Version,
		TestID:       sel.testID,
		Variant:      sel.variant,
	}

	langs := i18n.Chain(req.Recipient.Locale, req.Recipient.FallbackLocales, req.TenantLanguages)
	tr, err := r.pickTranslation(ctx, ref, langs, req.TenantID, sel.version.ID)
	if err == nil {
		out.Language = tr.Language
		out.Content, err = render(key, tr, req.Payload)
	}
	out.Elapsed = r.now().Sub(start)
	r.record(ctx, req, out, err == nil)
	return out, err
}

func (r *Resolver) selectVersion(ctx context.Context, ref TemplateRef, recipientID string, at time.Time) selection {
	if r.versions == nil {
		return selection{}
	}
	sel, err := r.lookupVersion(ctx, ref, recipientID, at)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "template version lookup failed, rendering unversioned",
			logger.EventKey(ref.EventKey),
			logger.Channel(string(ref.Channel)),
			logger.Error(err),
		)
		return selection{}
	}
	return sel
}

func (r *Resolver) lookupVersion(ctx context.Context, ref TemplateRef, recipientID string, at time.Time) (selection, error) {
	tests, err := r.versions.ListTests(ctx, ref)
	if err != nil {
		return selection{}, err
	}
	inTest := map[string]bool{}
	for _, t := range tests {
		if !t.Active(at) {
			continue
		}
		inTest[t.ControlVersionID], inTest[t.TestVersionID] = true, true

		control, err := r.versions.GetVersion(ctx, t.ControlVersionID)
		if err != nil {
			return selection{}, err
		}
		testVersion, err := r.versions.GetVersion(ctx, t.TestVersionID)
		if err != nil {
			return selection{}, err
		}
		variant, ok := Assign(t, control.TrafficPercentage, testVersion.TrafficPercentage, recipientID)
		if !ok {
			continue
		}
		if variant == VariantTest {
			return selection{version: testVersion, testID: t.ID, variant: variant}, nil
		}
		return selection{version: control, testID: t.ID, variant: variant}, nil
	}

	versions, err := r.versions.ListVersions(ctx, ref)
	if err != nil {
		return selection{}, err
	}
	var def *TemplateVersion
	for i, v := range versions {
		if v.IsDefault {
			if v.IsActive && v.InWindow(at) {
				def = &versions[i]
			}
			continue
		}
		if !inTest[v.ID] && v.IsEligibleForUser(recipientID, at) {
			return selection{version: v, variant: VariantRollout}, nil
		}
	}
	if def != nil {
		return selection{version: *def, variant: VariantDefault}, nil
	}
	return selection{}, nil
}

// pickTranslation walks the language chain. Within one language it prefers
// versioned over generic content and tenant over global content.
func (r *Resolver) pickTranslation(ctx context.Context, ref TemplateRef, langs []string, tenantID, versionID string) (Translation, error) {
	found, err := r.translations.FindTranslations(ctx, ref.EventKey, ref.TemplateType, langs)
	if err != nil {
		return Translation{}, errors.Join(&NoTranslationError{EventKey: ref.EventKey, TemplateType: ref.TemplateType, Languages: langs}, err)
	}
	index := make(map[translationKey]Translation, len(found))
	for _, t := range found {
		index[keyOf(t)] = t
	}

	versions := []string{""}
	if versionID != "" {
		versions = []string{versionID, ""}
	}
	tenants := []string{""}
	if tenantID != "" {
		tenants = []string{tenantID, ""}
	}
	for _, lang := range langs {
		for _, v := range versions {
			for _, tenant := range tenants {
				if t, ok := index[translationKey{ref.EventKey, ref.TemplateType, lang, tenant, v}]; ok {
					return t, nil
				}
			}
		}
	}
	return Translation{}, &NoTranslationError{EventKey: ref.EventKey, TemplateType: ref.TemplateType, Languages: langs}
}

func render(eventKey string, t Translation, payload map[string]any) (notifications.Content, error) {
	var c notifications.Content
	var err error
	if c.Title, err = i18n.Interpolate(t.Title, payload, false); err != nil {
		return c, &RenderError{EventKey: eventKey, Field: "title", Err: err}
	}
	if c.Text, err = i18n.Interpolate(t.Text, payload, false); err != nil {
		return c, &RenderError{EventKey: eventKey, Field: "text", Err: err}
	}
	if c.HTML, err = i18n.Interpolate(t.HTML, payload, true); err != nil {
		return c, &RenderError{EventKey: eventKey, Field: "html", Err: err}
	}
	return c, nil
}

func (r *Resolver) record(ctx context.Context, req RenderRequest, out Rendered, success bool) {
	if out.VersionID != "" {
		if err := r.versions.RecordRender(ctx, out.VersionID, success, out.Elapsed); err != nil {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "version counter update failed",
				logger.TemplateID(out.VersionID),
				logger.Error(err),
			)
		}
	}
	if r.usage == nil {
		return
	}
	locale := out.Language
	if locale == "" {
		locale = i18n.Canonical(req.Recipient.Locale)
	}
	key := analytics.Key{
		EventKey:     out.EventKey,
		TemplateType: out.TemplateType,
		Channel:      out.Channel,
		TenantID:     req.TenantID,
		Locale:       locale,
	}
	if err := r.usage.RecordRender(ctx, key, success, out.Elapsed); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "usage counter update failed",
			logger.EventKey(out.EventKey),
			logger.Error(err),
		)
	}
}
