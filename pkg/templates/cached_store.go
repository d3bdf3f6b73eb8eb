package templates

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// CachedTranslationStore puts an LRU cache with TTL in front of a
// TranslationStore. Concurrent misses for the same lookup share one load.
type CachedTranslationStore struct {
	next  TranslationStore
	cache *cache.LRUCache[string, []Translation]
}

func NewCachedTranslationStore(next TranslationStore, size int, ttl time.Duration) *CachedTranslationStore {
	return &CachedTranslationStore{
		next:  next,
		cache: cache.NewLRUCache[string, []Translation](size, cache.WithTTL(ttl)),
	}
}

func (s *CachedTranslationStore) FindTranslations(ctx context.Context, eventKey, templateType string, languages []string) ([]Translation, error) {
	key := eventKey + "\x00" + templateType + "\x00" + strings.Join(languages, ",")
	found, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]Translation, error) {
		return s.next.FindTranslations(ctx, eventKey, templateType, languages)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(found), nil
}

// PutTranslation writes through and drops every cached lookup.
func (s *CachedTranslationStore) PutTranslation(ctx context.Context, t Translation) error {
	if err := s.next.PutTranslation(ctx, t); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}
