package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// RedisStore keeps each row in a hash updated with HINCRBY inside a
// MULTI block. Sorted sets index rows by event key and, for hourly rows,
// by hour.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	hourlyTTL time.Duration
}

type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace. Default "notifykit:analytics".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithHourlyTTL expires hourly rows after d. Zero keeps them forever.
func WithHourlyTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.hourlyTTL = d
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "notifykit:analytics"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	fieldEvent    = "event_key"
	fieldTemplate = "template_type"
	fieldChannel  = "channel"
	fieldTenant   = "tenant_id"
	fieldLocale   = "locale"
	fieldHour     = "hour"
)

func rowID(k Key) string {
	return strings.Join([]string{k.EventKey, k.TemplateType, string(k.Channel), k.TenantID, k.Locale}, "|")
}

func (s *RedisStore) usageKey(k Key) string { return s.prefix + ":usage:" + rowID(k) }

func (s *RedisStore) hourlyKey(k Key, hour time.Time) string {
	return fmt.Sprintf("%s:hourly:%d:%s", s.prefix, hour.Unix(), rowID(k))
}

func (s *RedisStore) usageIndex(eventKey string) string  { return s.prefix + ":idx:usage:" + eventKey }
func (s *RedisStore) hourlyIndex(eventKey string) string { return s.prefix + ":idx:hourly:" + eventKey }
func (s *RedisStore) eventsIndex() string                { return s.prefix + ":idx:events" }

func (s *RedisStore) Increment(ctx context.Context, inc Increment) error {
	hour := inc.Hour.UTC().Truncate(time.Hour)
	usage, hourly := s.usageKey(inc.Key), s.hourlyKey(inc.Key, hour)
	meta := map[string]any{
		fieldEvent:    inc.EventKey,
		fieldTemplate: inc.TemplateType,
		fieldChannel:  string(inc.Channel),
		fieldTenant:   inc.TenantID,
		fieldLocale:   inc.Locale,
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range []string{usage, hourly} {
			p.HSet(ctx, key, meta)
			for field, delta := range counterFields(inc.Counters) {
				if delta != 0 {
					p.HIncrBy(ctx, key, field, delta)
				}
			}
		}
		p.HSet(ctx, hourly, fieldHour, hour.Unix())
		if s.hourlyTTL > 0 {
			p.Expire(ctx, hourly, s.hourlyTTL)
		}
		p.SAdd(ctx, s.eventsIndex(), inc.EventKey)
		p.SAdd(ctx, s.usageIndex(inc.EventKey), usage)
		p.ZAdd(ctx, s.hourlyIndex(inc.EventKey), redis.Z{Score: float64(hour.Unix()), Member: hourly})
		return nil
	})
	return err
}

func counterFields(c Counters) map[string]int64 {
	return map[string]int64{
		"renders":     c.Renders,
		"successes":   c.Successes,
		"errors":      c.Errors,
		"clicks":      c.Clicks,
		"opens":       c.Opens,
		"conversions": c.Conversions,
		"render_ms":   c.RenderMs,
	}
}

func (s *RedisStore) events(ctx context.Context, eventKey string) ([]string, error) {
	if eventKey != "" {
		return []string{eventKey}, nil
	}
	return s.client.SMembers(ctx, s.eventsIndex()).Result()
}

func (s *RedisStore) Usage(ctx context.Context, eventKey, tenantID string) ([]Row, error) {
	events, err := s.events(ctx, eventKey)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, ev := range events {
		members, err := s.client.SMembers(ctx, s.usageIndex(ev)).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, members...)
	}
	return s.load(ctx, keys, tenantID)
}

func (s *RedisStore) Hourly(ctx context.Context, eventKey, tenantID string, since time.Time) ([]Row, error) {
	events, err := s.events(ctx, eventKey)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, ev := range events {
		members, err := s.client.ZRangeByScore(ctx, s.hourlyIndex(ev), &redis.ZRangeBy{
			Min: strconv.FormatInt(since.Unix(), 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, members...)
	}
	return s.load(ctx, keys, tenantID)
}

func (s *RedisStore) load(ctx context.Context, keys []string, tenantID string) ([]Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(keys))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue // expired hourly row still indexed
		}
		row := parseRow(h)
		if tenantID != "" && row.TenantID != tenantID {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(h map[string]string) Row {
	n := func(f string) int64 {
		v, _ := strconv.ParseInt(h[f], 10, 64)
		return v
	}
	row := Row{
		Key: Key{
			EventKey:     h[fieldEvent],
			TemplateType: h[fieldTemplate],
			Channel:      notifications.Channel(h[fieldChannel]),
			TenantID:     h[fieldTenant],
			Locale:       h[fieldLocale],
		},
		Counters: Counters{
			Renders:     n("renders"),
			Successes:   n("successes"),
			Errors:      n("errors"),
			Clicks:      n("clicks"),
			Opens:       n("opens"),
			Conversions: n("conversions"),
			RenderMs:    n("render_ms"),
		},
	}
	if ts := n(fieldHour); ts > 0 {
		row.Hour = time.Unix(ts, 0).UTC()
	}
	return row
}
