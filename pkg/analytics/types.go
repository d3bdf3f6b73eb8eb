package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Key identifies one usage row.
type Key struct {
	EventKey     string                `json:"event_key"`
	TemplateType string                `json:"template_type"`
	Channel      notifications.Channel `json:"channel"`
	TenantID     string                `json:"tenant_id,omitempty"`
	Locale       string                `json:"locale,omitempty"`
}

// EngagementKind is a recipient interaction with a delivered notification.
type EngagementKind string

const (
	EngagementClick      EngagementKind = "click"
	EngagementOpen       EngagementKind = "open"
	EngagementConversion EngagementKind = "conversion"
)

func ParseEngagementKind(s string) (EngagementKind, error) {
	switch k := EngagementKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EngagementClick, EngagementOpen, EngagementConversion:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEngagement, s)
}

// Counters are the raw increments kept per row.
type Counters struct {
	Renders     int64 `json:"renders"`
	Successes   int64 `json:"successes"`
	Errors      int64 `json:"errors"`
	Clicks      int64 `json:"clicks"`
	Opens       int64 `json:"opens"`
	Conversions int64 `json:"conversions"`
	RenderMs    int64 `json:"render_ms"`
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.Renders += other.Renders
	c.Successes += other.Successes
	c.Errors += other.Errors
	c.Clicks += other.Clicks
	c.Opens += other.Opens
	c.Conversions += other.Conversions
	c.RenderMs += other.RenderMs
}

// Row is a usage row. Hour is zero for cumulative rows.
type Row struct {
	Key
	Hour time.Time `json:"hour,omitzero"`
	Counters
}

// Metrics are counters with derived rates in percent.
type Metrics struct {
	Counters
	SuccessRate    float64 `json:"success_rate"`
	ErrorRate      float64 `json:"error_rate"`
	CTR            float64 `json:"ctr"`
	OpenRate       float64 `json:"open_rate"`
	ConversionRate float64 `json:"conversion_rate"`
	AvgRenderMs    float64 `json:"avg_render_ms"`
}

// NewMetrics derives rates from c. Every rate is 0 when nothing rendered.
func NewMetrics(c Counters) Metrics {
	return Metrics{
		Counters:       c,
		SuccessRate:    rate(c.Successes, c.Renders),
		ErrorRate:      rate(c.Errors, c.Renders),
		CTR:            rate(c.Clicks, c.Renders),
		OpenRate:       rate(c.Opens, c.Renders),
		ConversionRate: rate(c.Conversions, c.Renders),
		AvgRenderMs:    ratio(c.RenderMs, c.Renders),
	}
}

func rate(count, total int64) float64 {
	return ratio(count, total) * 100
}

func ratio(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// Metric names a sortable figure of Metrics.
type Metric string

const (
	MetricRenders        Metric = "renders"
	MetricSuccessRate    Metric = "success_rate"
	MetricErrorRate      Metric = "error_rate"
	MetricCTR            Metric = "ctr"
	MetricOpenRate       Metric = "open_rate"
	MetricConversionRate Metric = "conversion_rate"
	MetricClicks         Metric = "clicks"
	MetricConversions    Metric = "conversions"
)

func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := m.value(Metrics{}); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
	return m, nil
}

// Value returns the figure m selects from metrics.
func (m Metric) Value(metrics Metrics) float64 {
	v, _ := m.value(metrics)
	return v
}

func (m Metric) value(x Metrics) (float64, bool) {
	switch m {
	case MetricRenders:
		return float64(x.Renders), true
	case MetricSuccessRate:
		return x.SuccessRate, true
	case MetricErrorRate:
		return x.ErrorRate, true
	case MetricCTR:
		return x.CTR, true
	case MetricOpenRate:
		return x.OpenRate, true
	case MetricConversionRate:
		return x.ConversionRate, true
	case MetricClicks:
		return float64(x.Clicks), true
	case MetricConversions:
		return float64(x.Conversions), true
	}
	return 0, false
}

// StatsQuery selects the rows aggregated by GetStats. An empty TenantID
// aggregates every tenant.
type StatsQuery struct {
	EventKey   string `json:"event_key"`
	WindowDays int    `json:"window_days"`
	TenantID   string `json:"tenant_id,omitempty"`
}

func (q StatsQuery) cacheKey() string {
	return fmt.Sprintf("stats|%s|%d|%s", q.EventKey, q.WindowDays, q.TenantID)
}

// StatsSnapshot is the rolled-up view of one event.
type StatsSnapshot struct {
	EventKey    string                            `json:"event_key"`
	TenantID    string                            `json:"tenant_id,omitempty"`
	WindowDays  int                               `json:"window_days"`
	From        time.Time                         `json:"from"`
	To          time.Time                         `json:"to"`
	Window      Metrics                           `json:"window"`
	Lifetime    Metrics                           `json:"lifetime"`
	ByChannel   map[notifications.Channel]Metrics `json:"by_channel"`
	ByLocale    map[string]Metrics                `json:"by_locale"`
	ByTemplate  map[string]Metrics                `json:"by_template"`
	GeneratedAt time.Time                         `json:"generated_at"`
}

// TemplateRank is one entry of TopTemplates.
type TemplateRank struct {
	EventKey     string  `json:"event_key"`
	TemplateType string  `json:"template_type"`
	Value        float64 `json:"value"`
	Metrics      Metrics `json:"metrics"`
}
