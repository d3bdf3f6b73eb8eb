package templates

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Primary metrics an A/B test can be evaluated on.
const (
	MetricSuccessRate    = "success_rate"
	MetricCTR            = "ctr"
	MetricOpenRate       = "open_rate"
	MetricConversionRate = "conversion_rate"
)

const defaultSignificance = 0.05

// VersionManager owns template versions and A/B tests. All counter
// mutation goes through the VersionStore; the manager never writes
// counters itself.
type VersionManager struct {
	store        VersionStore
	translations TranslationStore
	now          func() time.Time
	newID        func() string
	logger       *slog.Logger
}

type ManagerOption func(*VersionManager)

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *VersionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *VersionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithManagerIDGenerator(gen func() string) ManagerOption {
	return func(m *VersionManager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

func NewVersionManager(store VersionStore, translations TranslationStore, opts ...ManagerOption) *VersionManager {
	m := &VersionManager{
		store:        store,
		translations: translations,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewVersion describes a version to create with its content.
type NewVersion struct {
	EventKey          string
	Channel           notifications.Channel
	TemplateType      string
	Version           string
	Active            bool
	TrafficPercentage int
	StartDate         *time.Time
	EndDate           *time.Time
	Translations      []Translation
}

func (n NewVersion) validate() error {
	var errs []error
	if n.EventKey == "" {
		errs = append(errs, errors.New("event key is required"))
	}
	if n.Version == "" {
		errs = append(errs, errors.New("version label is required"))
	}
	if n.TrafficPercentage < 0 || n.TrafficPercentage > 100 {
		errs = append(errs, fmt.Errorf("traffic percentage %d out of [0,100]", n.TrafficPercentage))
	}
	if n.StartDate != nil && n.EndDate != nil && n.EndDate.Before(*n.StartDate) {
		errs = append(errs, errors.New("end date before start date"))
	}
	if len(n.Translations) == 0 {
		errs = append(errs, errors.New("at least one translation is required"))
	}
	for _, t := range n.Translations {
		if t.Language == "" {
			errs = append(errs, errors.New("translation language is required"))
			break
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidVersion}, errs...)...)
	}
	return nil
}

// ContentHash is the SHA-256 of the translations, independent of their
// order.
func ContentHash(translations []Translation) string {
	sorted := slices.Clone(translations)
	slices.SortFunc(sorted, func(a, b Translation) int {
		return cmp.Or(cmp.Compare(a.Language, b.Language), cmp.Compare(a.TenantID, b.TenantID))
	})
	h := sha256.New()
	for _, t := range sorted {
		for _, part := range []string{t.Language, t.TenantID, t.Title, t.Text, t.HTML} {
			h.Write([]byte(part))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CreateVersion stores a version and its translations.
func (m *VersionManager) CreateVersion(ctx context.Context, n NewVersion) (TemplateVersion, error) {
	if n.TemplateType == "" {
		n.TemplateType = TypeDefault
	}
	if err := n.validate(); err != nil {
		return TemplateVersion{}, err
	}
	v := TemplateVersion{
		ID:                m.newID(),
		EventKey:          n.EventKey,
		Channel:           n.Channel,
		TemplateType:      n.TemplateType,
		Version:           n.Version,
		ContentHash:       ContentHash(n.Translations),
		IsActive:          n.Active,
		TrafficPercentage: n.TrafficPercentage,
		StartDate:         n.StartDate,
		EndDate:           n.EndDate,
		CreatedAt:         m.now().UTC(),
	}
	if err := m.store.CreateVersion(ctx, v); err != nil {
		return TemplateVersion{}, err
	}
	for _, t := range n.Translations {
		t.EventKey, t.TemplateType, t.Version = v.EventKey, v.TemplateType, v.ID
		if err := m.translations.PutTranslation(ctx, t); err != nil {
			return TemplateVersion{}, fmt.Errorf("store translation %s: %w", t.Language, err)
		}
	}
	m.logger.InfoContext(ctx, "template version created",
		logger.EventKey(v.EventKey),
		logger.TemplateID(v.ID),
		slog.String("version", v.Version),
	)
	return v, nil
}

// SetDefault makes an active version the template's only default.
func (m *VersionManager) SetDefault(ctx context.Context, id string) error {
	v, err := m.store.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if !v.IsActive {
		return fmt.Errorf("%w: inactive version cannot be default", ErrInvalidVersion)
	}
	return m.store.SetDefault(ctx, id)
}

// SetActive toggles a version. The default version cannot be deactivated.
func (m *VersionManager) SetActive(ctx context.Context, id string, active bool) error {
	v, err := m.store.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if !active && v.IsDefault {
		return fmt.Errorf("%w: default version cannot be deactivated", ErrInvalidVersion)
	}
	v.IsActive = active
	return m.store.UpdateVersion(ctx, v)
}

// Snapshot returns the current state of a version with its counters.
func (m *VersionManager) Snapshot(ctx context.Context, id string) (TemplateVersion, error) {
	return m.store.GetVersion(ctx, id)
}

// StartTest validates and stores an A/B test. The template is taken from
// the control version.
func (m *VersionManager) StartTest(ctx context.Context, t ABTest) (ABTest, error) {
	control, err := m.store.GetVersion(ctx, t.ControlVersionID)
	if err != nil {
		return ABTest{}, fmt.Errorf("control version: %w", err)
	}
	test, err := m.store.GetVersion(ctx, t.TestVersionID)
	if err != nil {
		return ABTest{}, fmt.Errorf("test version: %w", err)
	}

	switch {
	case control.ID == test.ID:
		return ABTest{}, fmt.Errorf("%w: control and test are the same version", ErrInvalidTest)
	case control.Ref() != test.Ref():
		return ABTest{}, fmt.Errorf("%w: versions belong to different templates", ErrInvalidTest)
	case !control.IsActive || !test.IsActive:
		return ABTest{}, fmt.Errorf("%w: both versions must be active", ErrInvalidTest)
	case test.TrafficPercentage <= 0:
		return ABTest{}, fmt.Errorf("%w: test version %s has no traffic share", ErrInvalidTest, test.ID)
	case t.TrafficPercentage <= 0 || t.TrafficPercentage > 100:
		return ABTest{}, fmt.Errorf("%w: traffic percentage %d out of (0,100]", ErrInvalidTest, t.TrafficPercentage)
	case !t.EndDate.After(t.StartDate):
		return ABTest{}, fmt.Errorf("%w: end date must be after start date", ErrInvalidTest)
	case control.TrafficPercentage+test.TrafficPercentage > 100:
		return ABTest{}, fmt.Errorf("%w: control %d + test %d", ErrTrafficExceeded, control.TrafficPercentage, test.TrafficPercentage)
	}

	ref := control.Ref()
	existing, err := m.store.ListTests(ctx, ref)
	if err != nil {
		return ABTest{}, err
	}
	for _, e := range existing {
		if t.StartDate.Before(e.EndDate) && e.StartDate.Before(t.EndDate) {
			return ABTest{}, fmt.Errorf("%w: overlaps test %s", ErrTestOverlap, e.ID)
		}
	}

	t.ID = m.newID()
	t.EventKey, t.Channel, t.TemplateType = ref.EventKey, ref.Channel, ref.TemplateType
	if t.PrimaryMetric == "" {
		t.PrimaryMetric = MetricSuccessRate
	}
	if t.SignificanceLevel <= 0 || t.SignificanceLevel >= 1 {
		t.SignificanceLevel = defaultSignificance
	}
	if _, ok := conversions(control, t.PrimaryMetric); !ok {
		return ABTest{}, fmt.Errorf("%w: unknown primary metric %q", ErrInvalidTest, t.PrimaryMetric)
	}
	t.ControlMetrics, t.TestMetrics = VariantMetrics{VersionID: control.ID}, VariantMetrics{VersionID: test.ID}
	t.PValue, t.IsSignificant, t.Winner, t.EvaluatedAt = 1, false, "", nil

	if err := m.store.CreateTest(ctx, t); err != nil {
		return ABTest{}, err
	}
	m.logger.InfoContext(ctx, "ab test started",
		logger.EventKey(t.EventKey),
		slog.String("test_id", t.ID),
		slog.Int("traffic_percentage", t.TrafficPercentage),
	)
	return t, nil
}

func conversions(v TemplateVersion, metric string) (int64, bool) {
	switch metric {
	case MetricSuccessRate:
		return v.SuccessCount, true
	case MetricCTR:
		return v.ClickCount, true
	case MetricOpenRate:
		return v.OpenCount, true
	case MetricConversionRate:
		return v.ConversionCount, true
	}
	return 0, false
}

func variantMetrics(v TemplateVersion, metric string) VariantMetrics {
	x, _ := conversions(v, metric)
	m := VariantMetrics{VersionID: v.ID, Samples: v.RenderCount, Conversions: x}
	if m.Samples > 0 {
		m.Rate = float64(x) / float64(m.Samples) * 100
	}
	return m
}

// EvaluateTest recomputes the metric snapshots and significance of a test
// from the current version counters and stores the result.
func (m *VersionManager) EvaluateTest(ctx context.Context, id string) (ABTest, error) {
	t, err := m.store.GetTest(ctx, id)
	if err != nil {
		return ABTest{}, err
	}
	control, err := m.store.GetVersion(ctx, t.ControlVersionID)
	if err != nil {
		return ABTest{}, fmt.Errorf("control version: %w", err)
	}
	test, err := m.store.GetVersion(ctx, t.TestVersionID)
	if err != nil {
		return ABTest{}, fmt.Errorf("test version: %w", err)
	}

	t.ControlMetrics = variantMetrics(control, t.PrimaryMetric)
	t.TestMetrics = variantMetrics(test, t.PrimaryMetric)
	z, p := TwoProportionZTest(
		t.ControlMetrics.Conversions, t.ControlMetrics.Samples,
		t.TestMetrics.Conversions, t.TestMetrics.Samples,
	)
	level := t.SignificanceLevel
	if level <= 0 {
		level = defaultSignificance
	}
	t.PValue = p
	t.IsSignificant = p < level
	t.Winner = ""
	if t.IsSignificant {
		t.Winner = string(VariantControl)
		if z > 0 {
			t.Winner = string(VariantTest)
		}
	}
	now := m.now().UTC()
	t.EvaluatedAt = &now

	if err := m.store.UpdateTest(ctx, t); err != nil {
		return ABTest{}, err
	}
	return t, nil
}

// ActiveTests lists the tests of a template running at the current time.
func (m *VersionManager) ActiveTests(ctx context.Context, ref TemplateRef) ([]ABTest, error) {
	tests, err := m.store.ListTests(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := m.now()
	return slices.DeleteFunc(tests, func(t ABTest) bool { return !t.Active(now) }), nil
}

// Versions lists a template's versions ordered by label.
func (m *VersionManager) Versions(ctx context.Context, ref TemplateRef) ([]TemplateVersion, error) {
	vs, err := m.store.ListVersions(ctx, ref)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(vs, func(a, b TemplateVersion) int { return strings.Compare(a.Version, b.Version) })
	return vs, nil
}
