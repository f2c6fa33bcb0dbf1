package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

var trendColumns = []string{
	"id", "trend_day_id", "title", "slug", "approx_traffic", "rank", "feed_position", "picture_url", "source",
	"published_at", "category_id", "ai_summary", "ai_article", "ai_faq", "summary_generated_at",
}

var newsColumns = []string{
	"id", "trend_id", "title", "url", "source", "picture_url", "ai_summary", "published_at",
}

// TrendRepository stores trends, news items and enrichment output.
type TrendRepository struct {
	db *sql.DB
}

var _ ports.TrendRepository = (*TrendRepository)(nil)

// NewTrendRepository wires a sql.DB implementation.
func NewTrendRepository(db *sql.DB) *TrendRepository {
	return &TrendRepository{db: db}
}

// FindTrendID looks up a trend by its natural key within a run.
func (r *TrendRepository) FindTrendID(ctx context.Context, runID int64, title string) (int64, bool, error) {
	query, args, err := psql.Select("id").
		From("trends").
		Where(sq.Eq{"trend_day_id": runID}).
		Where(sq.Eq{"title": title}).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build find trend: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find trend: %w", err)
	}
	return id, true, nil
}

// InsertTrend inserts the trend unless its natural key or slug is taken, in
// which case the existing id is returned with created=false.
func (r *TrendRepository) InsertTrend(ctx context.Context, t domain.Trend) (int64, bool, error) {
	query, args, err := psql.Insert("trends").
		Columns("trend_day_id", "title", "slug", "approx_traffic", "rank", "feed_position", "picture_url", "source", "published_at").
		Values(t.RunID, t.Title, t.Slug, t.ApproxTraffic, t.Rank, t.Position, t.PictureURL, t.PictureSource, t.PublishedAt).
		Suffix("ON CONFLICT DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build insert trend: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert trend %q: %w", t.Title, err)
	}

	query, args, err = psql.Select("id").
		From("trends").
		Where(sq.Or{
			sq.And{sq.Eq{"trend_day_id": t.RunID}, sq.Eq{"title": t.Title}},
			sq.Eq{"slug": t.Slug},
		}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build select existing trend: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select existing trend %q: %w", t.Title, err)
	}
	return id, false, nil
}

// UpsertNewsItem inserts the item unless (trend, title, url) already exists.
func (r *TrendRepository) UpsertNewsItem(ctx context.Context, item domain.NewsItem) (bool, error) {
	query, args, err := psql.Insert("news_items").
		Columns("trend_id", "title", "url", "source", "picture_url", "published_at").
		Values(item.TrendID, item.Title, item.URL, item.Source, item.PictureURL, item.PublishedAt).
		Suffix("ON CONFLICT (trend_id, title, url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert news item: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert news item %q: %w", item.URL, err)
	}
	return true, nil
}

// GetTrendWithNews loads a trend and its news items in insertion order.
func (r *TrendRepository) GetTrendWithNews(ctx context.Context, id int64) (domain.Trend, []domain.NewsItem, error) {
	query, args, err := psql.Select(trendColumns...).
		From("trends").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Trend{}, nil, fmt.Errorf("build select trend: %w", err)
	}

	trend, err := scanTrend(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trend{}, nil, fmt.Errorf("trend %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trend{}, nil, fmt.Errorf("select trend %d: %w", id, err)
	}

	query, args, err = psql.Select(newsColumns...).
		From("news_items").
		Where(sq.Eq{"trend_id": id}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return domain.Trend{}, nil, fmt.Errorf("build select news: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Trend{}, nil, fmt.Errorf("query news for trend %d: %w", id, err)
	}
	defer rows.Close()

	var news []domain.NewsItem
	for rows.Next() {
		var (
			n         domain.NewsItem
			picture   sql.NullString
			summary   sql.NullString
			published sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.TrendID, &n.Title, &n.URL, &n.Source, &picture, &summary, &published); err != nil {
			return domain.Trend{}, nil, fmt.Errorf("scan news item: %w", err)
		}
		n.PictureURL = nullString(picture)
		n.Summary = nullString(summary)
		n.PublishedAt = nullTime(published)
		news = append(news, n)
	}
	if err := rows.Err(); err != nil {
		return domain.Trend{}, nil, fmt.Errorf("rows iteration: %w", err)
	}
	return trend, news, nil
}

// SaveEnrichment writes summary, article, faq, category and timestamp in a
// single statement.
func (r *TrendRepository) SaveEnrichment(ctx context.Context, id int64, e domain.Enrichment) error {
	var faq any
	if len(e.FAQ) > 0 {
		raw, err := json.Marshal(e.FAQ)
		if err != nil {
			return fmt.Errorf("encode faq: %w", err)
		}
		faq = string(raw)
	}

	query, args, err := psql.Update("trends").
		Set("ai_summary", e.Summary).
		Set("ai_article", e.Article).
		Set("ai_faq", faq).
		Set("category_id", e.CategoryID).
		Set("summary_generated_at", e.GeneratedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update trend: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update trend %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trend %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanTrend(row *sql.Row) (domain.Trend, error) {
	var (
		t         domain.Trend
		published sql.NullTime
		category  sql.NullInt64
		summary   sql.NullString
		article   sql.NullString
		faq       []byte
		generated sql.NullTime
	)
	err := row.Scan(&t.ID, &t.RunID, &t.Title, &t.Slug, &t.ApproxTraffic, &t.Rank, &t.Position, &t.PictureURL, &t.PictureSource,
		&published, &category, &summary, &article, &faq, &generated)
	if err != nil {
		return t, err
	}

	t.PublishedAt = nullTime(published)
	if category.Valid {
		v := category.Int64
		t.CategoryID = &v
	}
	t.Summary = nullString(summary)
	t.Article = nullString(article)
	t.SummaryGeneratedAt = nullTime(generated)
	if len(faq) > 0 {
		if err := json.Unmarshal(faq, &t.FAQ); err != nil {
			return t, fmt.Errorf("decode faq: %w", err)
		}
	}
	return t, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
