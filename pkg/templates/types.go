package templates

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// TypeDefault is used when a request names no template type. Any other
// string is allowed.
const TypeDefault = "default"

// TemplateVersion is one renderable variant of an event's template for a
// channel and template type. Its content lives in translations carrying
// the version ID.
type TemplateVersion struct {
	ID                string                `json:"id"`
	EventKey          string                `json:"event_key"`
	Channel           notifications.Channel `json:"channel"`
	TemplateType      string                `json:"template_type"`
	Version           string                `json:"version"`
	ContentHash       string                `json:"content_hash"`
	IsActive          bool                  `json:"is_active"`
	IsDefault         bool                  `json:"is_default"`
	TrafficPercentage int                   `json:"traffic_percentage"`
	StartDate         *time.Time            `json:"start_date,omitempty"`
	EndDate           *time.Time            `json:"end_date,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`

	RenderCount     int64   `json:"render_count"`
	SuccessCount    int64   `json:"success_count"`
	ErrorCount      int64   `json:"error_count"`
	AvgRenderTimeMs float64 `json:"avg_render_time_ms"`
	ClickCount      int64   `json:"click_count"`
	OpenCount       int64   `json:"open_count"`
	ConversionCount int64   `json:"conversion_count"`
}

// InWindow reports whether at falls inside the version's optional dates.
func (v TemplateVersion) InWindow(at time.Time) bool {
	return inWindow(v.StartDate, v.EndDate, at)
}

// IsEligibleForUser reports whether a rollout version applies to the
// recipient: active, inside its window, and the recipient's bucket for the
// event falls under the traffic percentage.
func (v TemplateVersion) IsEligibleForUser(recipientID string, at time.Time) bool {
	if !v.IsActive || !v.InWindow(at) {
		return false
	}
	return feature.Bucket(recipientID, v.EventKey) < v.TrafficPercentage
}

func inWindow(start, end *time.Time, at time.Time) bool {
	if start != nil && at.Before(*start) {
		return false
	}
	if end != nil && at.After(*end) {
		return false
	}
	return true
}

// ABTest splits traffic of one template between a control and a test
// version.
type ABTest struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	EventKey          string                `json:"event_key"`
	Channel           notifications.Channel `json:"channel"`
	TemplateType      string                `json:"template_type"`
	ControlVersionID  string                `json:"control_version_id"`
	TestVersionID     string                `json:"test_version_id"`
	StartDate         time.Time             `json:"start_date"`
	EndDate           time.Time             `json:"end_date"`
	TrafficPercentage int                   `json:"traffic_percentage"`
	PrimaryMetric     string                `json:"primary_metric"`
	// SignificanceLevel is the p-value threshold, 0.05 when unset.
	SignificanceLevel float64 `json:"significance_level"`

	ControlMetrics VariantMetrics `json:"control_metrics"`
	TestMetrics    VariantMetrics `json:"test_metrics"`
	PValue         float64        `json:"p_value"`
	IsSignificant  bool           `json:"is_significant"`
	Winner         string         `json:"winner,omitempty"`
	EvaluatedAt    *time.Time     `json:"evaluated_at,omitempty"`
}

// Active reports whether at lies in [StartDate, EndDate].
func (t ABTest) Active(at time.Time) bool {
	return inWindow(&t.StartDate, &t.EndDate, at)
}

// Variant names the arm a recipient was assigned to.
type Variant string

const (
	VariantNone    Variant = ""
	VariantDefault Variant = "default"
	VariantRollout Variant = "rollout"
	VariantControl Variant = "control"
	VariantTest    Variant = "test"
)

// VariantMetrics is a derived snapshot of a version's counters.
type VariantMetrics struct {
	VersionID   string  `json:"version_id"`
	Samples     int64   `json:"samples"`
	Conversions int64   `json:"conversions"`
	Rate        float64 `json:"rate"`
}

// Translation is the content of a template in one language. Version is
// empty for generic content and TenantID empty for global content.
type Translation struct {
	EventKey     string `json:"event_key" yaml:"event_key"`
	TemplateType string `json:"template_type" yaml:"template_type"`
	Language     string `json:"language" yaml:"language"`
	TenantID     string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Title        string `json:"title" yaml:"title"`
	Text         string `json:"text" yaml:"text"`
	HTML         string `json:"html,omitempty" yaml:"html,omitempty"`
}

// Rendered is the output of Resolver.Render.
type Rendered struct {
	EventKey     string                `json:"event_key"`
	Channel      notifications.Channel `json:"channel"`
	TemplateType string                `json:"template_type"`
	Language     string                `json:"language"`
	VersionID    string                `json:"version_id,omitempty"`
	Version      string                `json:"version,omitempty"`
	TestID       string                `json:"test_id,omitempty"`
	Variant      Variant               `json:"variant,omitempty"`
	Content      notifications.Content `json:"content"`
	Elapsed      time.Duration         `json:"elapsed"`
}
