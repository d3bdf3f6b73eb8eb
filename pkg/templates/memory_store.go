package templates

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
)

type translationKey struct {
	event, tmpl, lang, tenant, version string
}

func keyOf(t Translation) translationKey {
	return translationKey{t.EventKey, t.TemplateType, t.Language, t.TenantID, t.Version}
}

// MemoryStore implements VersionStore and TranslationStore in memory.
type MemoryStore struct {
	mu           sync.RWMutex
	versions     map[string]*TemplateVersion
	tests        map[string]ABTest
	translations map[translationKey]Translation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions:     make(map[string]*TemplateVersion),
		tests:        make(map[string]ABTest),
		translations: make(map[translationKey]Translation),
	}
}

func (s *MemoryStore) CreateVersion(_ context.Context, v TemplateVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[v.ID]; ok {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidVersion, v.ID)
	}
	s.versions[v.ID] = &v
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, id string) (TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return TemplateVersion{}, ErrVersionNotFound
	}
	return *v, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, ref TemplateRef) ([]TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TemplateVersion
	for _, v := range s.versions {
		if v.Ref() == ref {
			out = append(out, *v)
		}
	}
	slices.SortFunc(out, func(a, b TemplateVersion) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// UpdateVersion replaces the mutable settings of a version. Counters are
// owned by RecordRender and RecordEngagement and are kept.
func (s *MemoryStore) UpdateVersion(_ context.Context, v TemplateVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.versions[v.ID]
	if !ok {
		return ErrVersionNotFound
	}
	cur.IsActive = v.IsActive
	cur.TrafficPercentage = v.TrafficPercentage
	cur.StartDate = v.StartDate
	cur.EndDate = v.EndDate
	return nil
}

func (s *MemoryStore) SetDefault(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	for _, v := range s.versions {
		if v.Ref() == target.Ref() {
			v.IsDefault = v.ID == id
		}
	}
	return nil
}

func (s *MemoryStore) RecordRender(_ context.Context, id string, success bool, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	v.RenderCount++
	if success {
		v.SuccessCount++
	} else {
		v.ErrorCount++
	}
	sample := float64(elapsed) / float64(time.Millisecond)
	v.AvgRenderTimeMs += (sample - v.AvgRenderTimeMs) / float64(v.RenderCount)
	return nil
}

func (s *MemoryStore) RecordEngagement(_ context.Context, id string, kind analytics.EngagementKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	switch kind {
	case analytics.EngagementClick:
		v.ClickCount++
	case analytics.EngagementOpen:
		v.OpenCount++
	case analytics.EngagementConversion:
		v.ConversionCount++
	default:
		return fmt.Errorf("%w: %q", analytics.ErrInvalidEngagement, kind)
	}
	return nil
}

func (s *MemoryStore) CreateTest(_ context.Context, t ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; ok {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidTest, t.ID)
	}
	s.tests[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTest(_ context.Context, id string) (ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[id]
	if !ok {
		return ABTest{}, ErrTestNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTests(_ context.Context, ref TemplateRef) ([]ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ABTest
	for _, t := range s.tests {
		if t.Ref() == ref {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b ABTest) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (s *MemoryStore) UpdateTest(_ context.Context, t ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; !ok {
		return ErrTestNotFound
	}
	s.tests[t.ID] = t
	return nil
}

func (s *MemoryStore) FindTranslations(_ context.Context, eventKey, templateType string, languages []string) ([]Translation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Translation
	for k, t := range s.translations {
		if k.event == eventKey && k.tmpl == templateType && slices.Contains(languages, k.lang) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutTranslation(_ context.Context, t Translation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translations[keyOf(t)] = t
	return nil
}
