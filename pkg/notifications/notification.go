package notifications

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents the notification priority level.
// Values are ordered, so comparisons like p >= PriorityHigh are meaningful.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityLabels = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority converts a config label into a Priority.
func ParsePriority(s string) (Priority, error) {
	label := strings.ToLower(strings.TrimSpace(s))
	for p, l := range priorityLabels {
		if l == label {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Content is the rendered title/text/html triple handed to transports.
// Nothing in this module builds wire payloads beyond it.
type Content struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	HTML  string `json:"html,omitempty"`
}

// Notification is one intended delivery to one recipient on one channel.
// Before rendering only the routing fields and Payload are set; after
// rendering Title, Message and HTML carry the content.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	TenantID    string         `json:"tenant_id,omitempty"`
	EventKey    string         `json:"event_key"`
	Channel     Channel        `json:"channel"`
	Priority    Priority       `json:"priority"`
	Locale      string         `json:"locale,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Title       string         `json:"title,omitempty"`
	Message     string         `json:"message,omitempty"`
	HTML        string         `json:"html,omitempty"`
	Link        string         `json:"link,omitempty"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// Content returns the rendered part of the notification.
func (n Notification) Content() Content {
	return Content{Title: n.Title, Text: n.Message, HTML: n.HTML}
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*n.ExpiresAt)
}

// MarkAsRead marks the notification as read with the current timestamp.
func (n *Notification) MarkAsRead() {
	n.Read = true
	now := time.Now()
	n.ReadAt = &now
}

// Recipient is the typed view of a notification target, built once at the
// boundary from the user directory.
type Recipient struct {
	ID              string              `json:"id"`
	Locale          string              `json:"locale,omitempty"`
	FallbackLocales []string            `json:"fallback_locales,omitempty"`
	Roles           []string            `json:"roles,omitempty"`
	Addresses       map[Channel]string  `json:"addresses,omitempty"`
	Attributes      map[string][]string `json:"attributes,omitempty"`

	// PreferredChannels is nil when the user never set preferences.
	// An empty non-nil set means the user opted out of everything.
	PreferredChannels ChannelSet `json:"preferred_channels"`
}

// Address returns the transport address for a channel. Realtime channels
// are addressed by recipient ID when no explicit address is configured.
func (r Recipient) Address(c Channel) string {
	if addr, ok := r.Addresses[c]; ok && addr != "" {
		return addr
	}
	if c.IsRealtime() {
		return r.ID
	}
	return ""
}

// FilterAttributes merges roles with custom attributes for registry filters.
func (r Recipient) FilterAttributes() map[string][]string {
	attrs := make(map[string][]string, len(r.Attributes)+1)
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	if len(r.Roles) > 0 {
		attrs["roles"] = append(attrs["roles"], r.Roles...)
	}
	return attrs
}
