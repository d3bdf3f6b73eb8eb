package analytics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Config holds aggregator settings.
type Config struct {
	CacheTTL  time.Duration `env:"ANALYTICS_CACHE_TTL" envDefault:"5m"`
	CacheSize int           `env:"ANALYTICS_CACHE_SIZE" envDefault:"1024"`
}

// Aggregator records render and engagement counters and serves rolled-up
// statistics. Reads are cached for a short TTL and writes never bust the
// cache, so readers see counters at most one TTL old.
type Aggregator struct {
	store  Store
	stats  *cache.LRUCache[string, StatsSnapshot]
	top    *cache.LRUCache[string, []TemplateRank]
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*aggregatorOptions)

type aggregatorOptions struct {
	ttl    time.Duration
	size   int
	now    func() time.Time
	logger *slog.Logger
}

func WithCacheTTL(d time.Duration) Option {
	return func(o *aggregatorOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func WithCacheSize(n int) Option {
	return func(o *aggregatorOptions) {
		if n > 0 {
			o.size = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *aggregatorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *aggregatorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Options converts the config into aggregator options.
func (c Config) Options() []Option {
	return []Option{WithCacheTTL(c.CacheTTL), WithCacheSize(c.CacheSize)}
}

func New(store Store, opts ...Option) *Aggregator {
	o := &aggregatorOptions{
		ttl:    5 * time.Minute,
		size:   1024,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Aggregator{
		store:  store,
		stats:  cache.NewLRUCache[string, StatsSnapshot](o.size, cache.WithTTL(o.ttl), cache.WithClock(o.now)),
		top:    cache.NewLRUCache[string, []TemplateRank](o.size, cache.WithTTL(o.ttl), cache.WithClock(o.now)),
		now:    o.now,
		logger: o.logger,
	}
}

// RecordRender counts one render attempt.
func (a *Aggregator) RecordRender(ctx context.Context, key Key, success bool, elapsed time.Duration) error {
	c := Counters{Renders: 1, RenderMs: elapsed.Milliseconds()}
	if success {
		c.Successes = 1
	} else {
		c.Errors = 1
	}
	return a.increment(ctx, key, c)
}

// RecordEngagement counts a click, open or conversion.
func (a *Aggregator) RecordEngagement(ctx context.Context, key Key, kind EngagementKind) error {
	var c Counters
	switch kind {
	case EngagementClick:
		c.Clicks = 1
	case EngagementOpen:
		c.Opens = 1
	case EngagementConversion:
		c.Conversions = 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEngagement, kind)
	}
	return a.increment(ctx, key, c)
}

func (a *Aggregator) increment(ctx context.Context, key Key, c Counters) error {
	inc := Increment{Key: key, Hour: a.now().UTC().Truncate(time.Hour), Counters: c}
	if err := a.store.Increment(ctx, inc); err != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "analytics increment failed",
			logger.EventKey(key.EventKey),
			logger.Channel(string(key.Channel)),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	return nil
}

func (a *Aggregator) windowStart(days int) time.Time {
	return a.now().UTC().Truncate(time.Hour).Add(-time.Duration(days) * 24 * time.Hour)
}

// GetStats aggregates lifetime rows and the hourly rows of the last
// WindowDays days.
func (a *Aggregator) GetStats(ctx context.Context, q StatsQuery) (StatsSnapshot, error) {
	if q.WindowDays < 1 {
		return StatsSnapshot{}, ErrInvalidWindow
	}
	return a.stats.GetOrLoad(ctx, q.cacheKey(), func(ctx context.Context) (StatsSnapshot, error) {
		return a.loadStats(ctx, q)
	})
}

func (a *Aggregator) loadStats(ctx context.Context, q StatsQuery) (StatsSnapshot, error) {
	from := a.windowStart(q.WindowDays)
	usage, err := a.store.Usage(ctx, q.EventKey, q.TenantID)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	hourly, err := a.store.Hourly(ctx, q.EventKey, q.TenantID, from)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	var lifetime, window Counters
	for _, r := range usage {
		lifetime.Add(r.Counters)
	}
	byChannel := map[notifications.Channel]Counters{}
	byLocale := map[string]Counters{}
	byTemplate := map[string]Counters{}
	for _, r := range hourly {
		window.Add(r.Counters)
		addTo(byChannel, r.Channel, r.Counters)
		addTo(byLocale, r.Locale, r.Counters)
		addTo(byTemplate, r.TemplateType, r.Counters)
	}

	return StatsSnapshot{
		EventKey:    q.EventKey,
		TenantID:    q.TenantID,
		WindowDays:  q.WindowDays,
		From:        from,
		To:          a.now().UTC(),
		Window:      NewMetrics(window),
		Lifetime:    NewMetrics(lifetime),
		ByChannel:   toMetrics(byChannel),
		ByLocale:    toMetrics(byLocale),
		ByTemplate:  toMetrics(byTemplate),
		GeneratedAt: a.now().UTC(),
	}, nil
}

func addTo[K comparable](m map[K]Counters, k K, c Counters) {
	cur := m[k]
	cur.Add(c)
	m[k] = cur
}

func toMetrics[K comparable](m map[K]Counters) map[K]Metrics {
	out := make(map[K]Metrics, len(m))
	for k, c := range m {
		out[k] = NewMetrics(c)
	}
	return out
}

// TopTemplates ranks (event, template type) pairs of the last windowDays
// days by metric, highest first. Ties order by event key, then template
// type, ascending.
func (a *Aggregator) TopTemplates(ctx context.Context, limit, windowDays int, metric Metric) ([]TemplateRank, error) {
	if windowDays < 1 {
		return nil, ErrInvalidWindow
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("top|%d|%d|%s", limit, windowDays, metric)
	ranks, err := a.top.GetOrLoad(ctx, key, func(ctx context.Context) ([]TemplateRank, error) {
		return a.loadTop(ctx, limit, windowDays, metric)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(ranks), nil
}

type templateKey struct {
	event, template string
}

func (a *Aggregator) loadTop(ctx context.Context, limit, windowDays int, metric Metric) ([]TemplateRank, error) {
	rows, err := a.store.Hourly(ctx, "", "", a.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	sums := map[templateKey]Counters{}
	for _, r := range rows {
		addTo(sums, templateKey{r.EventKey, r.TemplateType}, r.Counters)
	}

	ranks := make([]TemplateRank, 0, len(sums))
	for k, c := range sums {
		m := NewMetrics(c)
		ranks = append(ranks, TemplateRank{EventKey: k.event, TemplateType: k.template, Value: metric.Value(m), Metrics: m})
	}
	slices.SortFunc(ranks, func(x, y TemplateRank) int {
		if c := cmp.Compare(y.Value, x.Value); c != 0 {
			return c
		}
		if c := cmp.Compare(x.EventKey, y.EventKey); c != 0 {
			return c
		}
		return cmp.Compare(x.TemplateType, y.TemplateType)
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, nil
}
