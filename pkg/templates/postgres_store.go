package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements VersionStore and TranslationStore on the
// template_versions, ab_tests and template_translations tables.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const versionColumns = `id, event_key, channel, template_type, version, content_hash,
	is_active, is_default, traffic_percentage, start_date, end_date, created_at,
	render_count, success_count, error_count, avg_render_time_ms,
	click_count, open_count, conversion_count`

func scanVersion(row pgx.Row) (TemplateVersion, error) {
	var v TemplateVersion
	var channel string
	err := row.Scan(&v.ID, &v.EventKey, &channel, &v.TemplateType, &v.Version, &v.ContentHash,
		&v.IsActive, &v.IsDefault, &v.TrafficPercentage, &v.StartDate, &v.EndDate, &v.CreatedAt,
		&v.RenderCount, &v.SuccessCount, &v.ErrorCount, &v.AvgRenderTimeMs,
		&v.ClickCount, &v.OpenCount, &v.ConversionCount)
	v.Channel = notifications.Channel(channel)
	return v, err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func (s *PostgresStore) CreateVersion(ctx context.Context, v TemplateVersion) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO template_versions
			(id, event_key, channel, template_type, version, content_hash,
			 is_active, is_default, traffic_percentage, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.EventKey, string(v.Channel), v.TemplateType, v.Version, v.ContentHash,
		v.IsActive, v.IsDefault, v.TrafficPercentage, v.StartDate, v.EndDate, v.CreatedAt)
	return err
}

func (s *PostgresStore) GetVersion(ctx context.Context, id string) (TemplateVersion, error) {
	v, err := scanVersion(s.db.QueryRow(ctx, `SELECT `+versionColumns+` FROM template_versions WHERE id = $1`, id))
	if err != nil {
		return TemplateVersion{}, notFound(err, ErrVersionNotFound)
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, ref TemplateRef) ([]TemplateVersion, error) {
	rows, err := s.db.Query(ctx, `SELECT `+versionColumns+` FROM template_versions
		WHERE event_key = $1 AND channel = $2 AND template_type = $3 ORDER BY id`,
		ref.EventKey, string(ref.Channel), ref.TemplateType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (TemplateVersion, error) { return scanVersion(r) })
}

func (s *PostgresStore) UpdateVersion(ctx context.Context, v TemplateVersion) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE template_versions
		SET is_active = $2, traffic_percentage = $3, start_date = $4, end_date = $5
		WHERE id = $1`,
		v.ID, v.IsActive, v.TrafficPercentage, v.StartDate, v.EndDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// SetDefault clears the old default before setting the new one so the
// partial unique index on defaults is never violated mid-transaction.
func (s *PostgresStore) SetDefault(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE template_versions SET is_default = false
			WHERE is_default AND (event_key, channel, template_type) =
				(SELECT event_key, channel, template_type FROM template_versions WHERE id = $1)`, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE template_versions SET is_default = true WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionNotFound
		}
		return nil
	})
}

// RecordRender updates counters in one statement; the right-hand side sees
// the old row, which keeps the online mean consistent under concurrency.
func (s *PostgresStore) RecordRender(ctx context.Context, id string, success bool, elapsed time.Duration) error {
	var ok, failed int64
	if success {
		ok = 1
	} else {
		failed = 1
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE template_versions SET
			render_count = render_count + 1,
			success_count = success_count + $2,
			error_count = error_count + $3,
			avg_render_time_ms = avg_render_time_ms + ($4 - avg_render_time_ms) / (render_count + 1)
		WHERE id = $1`,
		id, ok, failed, float64(elapsed)/float64(time.Millisecond))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func (s *PostgresStore) RecordEngagement(ctx context.Context, id string, kind analytics.EngagementKind) error {
	var column string
	switch kind {
	case analytics.EngagementClick:
		column = "click_count"
	case analytics.EngagementOpen:
		column = "open_count"
	case analytics.EngagementConversion:
		column = "conversion_count"
	default:
		return fmt.Errorf("%w: %q", analytics.ErrInvalidEngagement, kind)
	}
	tag, err := s.db.Exec(ctx, `UPDATE template_versions SET `+column+` = `+column+` + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

const testColumns = `id, name, event_key, channel, template_type, control_version_id, test_version_id,
	start_date, end_date, traffic_percentage, primary_metric, significance_level,
	control_metrics, test_metrics, p_value, is_significant, winner, evaluated_at`

func scanTest(row pgx.Row) (ABTest, error) {
	var t ABTest
	var channel string
	err := row.Scan(&t.ID, &t.Name, &t.EventKey, &channel, &t.TemplateType, &t.ControlVersionID, &t.TestVersionID,
		&t.StartDate, &t.EndDate, &t.TrafficPercentage, &t.PrimaryMetric, &t.SignificanceLevel,
		&t.ControlMetrics, &t.TestMetrics, &t.PValue, &t.IsSignificant, &t.Winner, &t.EvaluatedAt)
	t.Channel = notifications.Channel(channel)
	return t, err
}

func (s *PostgresStore) CreateTest(ctx context.Context, t ABTest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ab_tests (`+testColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.Name, t.EventKey, string(t.Channel), t.TemplateType, t.ControlVersionID, t.TestVersionID,
		t.StartDate, t.EndDate, t.TrafficPercentage, t.PrimaryMetric, t.SignificanceLevel,
		t.ControlMetrics, t.TestMetrics, t.PValue, t.IsSignificant, t.Winner, t.EvaluatedAt)
	return err
}

func (s *PostgresStore) GetTest(ctx context.Context, id string) (ABTest, error) {
	t, err := scanTest(s.db.QueryRow(ctx, `SELECT `+testColumns+` FROM ab_tests WHERE id = $1`, id))
	if err != nil {
		return ABTest{}, notFound(err, ErrTestNotFound)
	}
	return t, nil
}

func (s *PostgresStore) ListTests(ctx context.Context, ref TemplateRef) ([]ABTest, error) {
	rows, err := s.db.Query(ctx, `SELECT `+testColumns+` FROM ab_tests
		WHERE event_key = $1 AND channel = $2 AND template_type = $3 ORDER BY start_date`,
		ref.EventKey, string(ref.Channel), ref.TemplateType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (ABTest, error) { return scanTest(r) })
}

func (s *PostgresStore) UpdateTest(ctx context.Context, t ABTest) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE ab_tests SET
			control_metrics = $2, test_metrics = $3, p_value = $4,
			is_significant = $5, winner = $6, evaluated_at = $7, end_date = $8
		WHERE id = $1`,
		t.ID, t.ControlMetrics, t.TestMetrics, t.PValue, t.IsSignificant, t.Winner, t.EvaluatedAt, t.EndDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTestNotFound
	}
	return nil
}

func (s *PostgresStore) FindTranslations(ctx context.Context, eventKey, templateType string, languages []string) ([]Translation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_key, template_type, language, tenant_id, version, title, text_body, html_body
		FROM template_translations
		WHERE event_key = $1 AND template_type = $2 AND language = ANY($3)`,
		eventKey, templateType, languages)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Translation])
}

func (s *PostgresStore) PutTranslation(ctx context.Context, t Translation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO template_translations
			(event_key, template_type, language, tenant_id, version, title, text_body, html_body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (event_key, template_type, language, tenant_id, version) DO UPDATE SET
			title = excluded.title,
			text_body = excluded.text_body,
			html_body = excluded.html_body,
			updated_at = now()`,
		t.EventKey, t.TemplateType, t.Language, t.TenantID, t.Version, t.Title, t.Text, t.HTML)
	return err
}
