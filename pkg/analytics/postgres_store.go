package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DB is the subset of *pgxpool.Pool used by the Postgres stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore writes counters with upserts that add to the stored
// values, so concurrent increments never overwrite each other. Tables are
// created by the notification_usage migration.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const upsertUsage = `
INSERT INTO notification_usage
	(event_key, template_type, channel, tenant_id, locale,
	 renders, successes, errors, clicks, opens, conversions, render_ms, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (event_key, template_type, channel, tenant_id, locale) DO UPDATE SET
	renders     = notification_usage.renders + excluded.renders,
	successes   = notification_usage.successes + excluded.successes,
	errors      = notification_usage.errors + excluded.errors,
	clicks      = notification_usage.clicks + excluded.clicks,
	opens       = notification_usage.opens + excluded.opens,
	conversions = notification_usage.conversions + excluded.conversions,
	render_ms   = notification_usage.render_ms + excluded.render_ms,
	updated_at  = now()`

const upsertHourly = `
INSERT INTO notification_hourly_performance
	(event_key, template_type, channel, tenant_id, locale, hour,
	 renders, successes, errors, clicks, opens, conversions, render_ms)
VALUES ($1, $2, $3, $4, $5, $13, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (event_key, template_type, channel, tenant_id, locale, hour) DO UPDATE SET
	renders     = notification_hourly_performance.renders + excluded.renders,
	successes   = notification_hourly_performance.successes + excluded.successes,
	errors      = notification_hourly_performance.errors + excluded.errors,
	clicks      = notification_hourly_performance.clicks + excluded.clicks,
	opens       = notification_hourly_performance.opens + excluded.opens,
	conversions = notification_hourly_performance.conversions + excluded.conversions,
	render_ms   = notification_hourly_performance.render_ms + excluded.render_ms`

func (s *PostgresStore) Increment(ctx context.Context, inc Increment) error {
	args := []any{
		inc.EventKey, inc.TemplateType, string(inc.Channel), inc.TenantID, inc.Locale,
		inc.Renders, inc.Successes, inc.Errors, inc.Clicks, inc.Opens, inc.Conversions, inc.RenderMs,
	}
	// A batch runs as one implicit transaction.
	b := &pgx.Batch{}
	b.Queue(upsertUsage, args...)
	b.Queue(upsertHourly, append(args, inc.Hour.UTC().Truncate(time.Hour))...)
	return s.db.SendBatch(ctx, b).Close()
}

const selectUsage = `
SELECT event_key, template_type, channel, tenant_id, locale,
	renders, successes, errors, clicks, opens, conversions, render_ms
FROM notification_usage
WHERE ($1 = '' OR event_key = $1) AND ($2 = '' OR tenant_id = $2)`

const selectHourly = `
SELECT event_key, template_type, channel, tenant_id, locale, hour,
	renders, successes, errors, clicks, opens, conversions, render_ms
FROM notification_hourly_performance
WHERE ($1 = '' OR event_key = $1) AND ($2 = '' OR tenant_id = $2) AND hour >= $3`

func (s *PostgresStore) Usage(ctx context.Context, eventKey, tenantID string) ([]Row, error) {
	rows, err := s.db.Query(ctx, selectUsage, eventKey, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Row, error) {
		var row Row
		var channel string
		err := r.Scan(&row.EventKey, &row.TemplateType, &channel, &row.TenantID, &row.Locale,
			&row.Renders, &row.Successes, &row.Errors, &row.Clicks, &row.Opens, &row.Conversions, &row.RenderMs)
		row.Channel = notifications.Channel(channel)
		return row, err
	})
}

func (s *PostgresStore) Hourly(ctx context.Context, eventKey, tenantID string, since time.Time) ([]Row, error) {
	rows, err := s.db.Query(ctx, selectHourly, eventKey, tenantID, since.UTC())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Row, error) {
		var row Row
		var channel string
		err := r.Scan(&row.EventKey, &row.TemplateType, &channel, &row.TenantID, &row.Locale, &row.Hour,
			&row.Renders, &row.Successes, &row.Errors, &row.Clicks, &row.Opens, &row.Conversions, &row.RenderMs)
		row.Channel = notifications.Channel(channel)
		row.Hour = row.Hour.UTC()
		return row, err
	})
}
