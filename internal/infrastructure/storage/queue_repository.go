package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

const (
	queueReturning = "RETURNING id, trend_id, trend_title, status, attempts, max_attempts, batch_id, error, created_at, processed_at"
	exhausted      = "attempts >= max_attempts"
	stuckError     = "processing timed out"
)

// QueueRepository is the Postgres-backed enrichment queue. Every transition
// is a single conditional UPDATE guarded on the current status, so two
// drainers never hold the same item.
type QueueRepository struct {
	db          *sql.DB
	maxAttempts int
	now         func() time.Time
}

var _ ports.QueueRepository = (*QueueRepository)(nil)

// NewQueueRepository wires a sql.DB implementation.
func NewQueueRepository(db *sql.DB, maxAttempts int) *QueueRepository {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &QueueRepository{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue adds a pending item unless the trend already has a live one.
func (r *QueueRepository) Enqueue(ctx context.Context, item domain.QueueItem) (bool, error) {
	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}

	query, args, err := psql.Insert("summary_queue").
		Columns("trend_id", "trend_title", "status", "attempts", "max_attempts", "created_at").
		Values(item.TrendID, item.TrendTitle, string(domain.QueuePending), 0, maxAttempts, r.now().UTC()).
		Suffix("ON CONFLICT (trend_id) WHERE status IN ('pending', 'processing') DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build enqueue: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enqueue trend %d: %w", item.TrendID, err)
	}
	return true, nil
}

// ClaimBatch atomically moves up to limit pending items with attempts left to
// processing under a fresh batch id, oldest first.
func (r *QueueRepository) ClaimBatch(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	pending, pendingArgs, err := sq.Select("id").
		From("summary_queue").
		Where(sq.Eq{"status": string(domain.QueuePending)}).
		Where("attempts < max_attempts").
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending subquery: %w", err)
	}

	batchID := uuid.New()
	query, args, err := psql.Update("summary_queue").
		Set("status", string(domain.QueueProcessing)).
		Set("batch_id", batchID).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("processed_at", r.now().UTC()).
		Where(sq.Expr("id IN ("+pending+")", pendingArgs...)).
		Suffix(queueReturning).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}

	items, err := r.queryItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// MarkCompleted finalizes a processing item.
func (r *QueueRepository) MarkCompleted(ctx context.Context, id int64) error {
	query, args, err := psql.Update("summary_queue").
		Set("status", string(domain.QueueCompleted)).
		Set("processed_at", r.now().UTC()).
		Where(sq.Eq{"id": id, "status": string(domain.QueueProcessing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete: %w", err)
	}
	return r.expectOne(ctx, id, query, args...)
}

// MarkFailedOrRetry records errMsg and either returns the item to pending or,
// when its attempts are used up, marks it failed.
func (r *QueueRepository) MarkFailedOrRetry(ctx context.Context, id int64, errMsg string) (domain.QueueStatus, error) {
	query, args, err := psql.Update("summary_queue").
		Set("status", sq.Expr("CASE WHEN "+exhausted+" THEN 'failed' ELSE 'pending' END")).
		Set("error", errMsg).
		Set("batch_id", sq.Expr("CASE WHEN "+exhausted+" THEN batch_id ELSE NULL END")).
		Set("processed_at", sq.Expr("CASE WHEN "+exhausted+" THEN ?::timestamptz ELSE NULL END", r.now().UTC())).
		Where(sq.Eq{"id": id, "status": string(domain.QueueProcessing)}).
		Suffix("RETURNING status").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build fail: %w", err)
	}

	var status string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("queue item %d not processing: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fail queue item %d: %w", id, err)
	}
	return domain.QueueStatus(status), nil
}

// Release hands processing items back to pending and refunds the attempt.
// It is used when a whole batch could not be dispatched.
func (r *QueueRepository) Release(ctx context.Context, ids []int64, errMsg string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := psql.Update("summary_queue").
		Set("status", string(domain.QueuePending)).
		Set("batch_id", nil).
		Set("processed_at", nil).
		Set("error", errMsg).
		Set("attempts", sq.Expr("GREATEST(attempts - 1, 0)")).
		Where("id = ANY(?)", pq.Array(ids)).
		Where(sq.Eq{"status": string(domain.QueueProcessing)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build release: %w", err)
	}
	return r.exec(ctx, query, args...)
}

// ResetStuck reverts items claimed before cutoff. Items with attempts left go
// back to pending; exhausted ones are marked failed.
func (r *QueueRepository) ResetStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Update("summary_queue").
		Set("status", sq.Expr("CASE WHEN "+exhausted+" THEN 'failed' ELSE 'pending' END")).
		Set("batch_id", nil).
		Set("processed_at", sq.Expr("CASE WHEN "+exhausted+" THEN processed_at ELSE NULL END")).
		Set("error", sq.Expr("CASE WHEN "+exhausted+" THEN ? ELSE error END", stuckError)).
		Where(sq.Eq{"status": string(domain.QueueProcessing)}).
		Where(sq.Lt{"processed_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset stuck: %w", err)
	}
	return r.exec(ctx, query, args...)
}

// Stats counts items per status.
func (r *QueueRepository) Stats(ctx context.Context) (domain.QueueStats, error) {
	query, args, err := psql.Select("status", "COUNT(*)").
		From("summary_queue").
		GroupBy("status").
		ToSql()
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("build stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats domain.QueueStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueStats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch domain.QueueStatus(status) {
		case domain.QueuePending:
			stats.Pending = count
		case domain.QueueProcessing:
			stats.Processing = count
		case domain.QueueCompleted:
			stats.Completed = count
		case domain.QueueFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.QueueStats{}, fmt.Errorf("rows iteration: %w", err)
	}
	return stats, nil
}

func (r *QueueRepository) queryItems(ctx context.Context, query string, args ...any) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		var (
			item      domain.QueueItem
			status    string
			batch     uuid.NullUUID
			lastError sql.NullString
			processed sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.TrendID, &item.TrendTitle, &status, &item.Attempts, &item.MaxAttempts,
			&batch, &lastError, &item.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.Status = domain.QueueStatus(status)
		if batch.Valid {
			id := batch.UUID
			item.BatchID = &id
		}
		item.LastError = nullString(lastError)
		item.ProcessedAt = nullTime(processed)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *QueueRepository) expectOne(ctx context.Context, id int64, query string, args ...any) error {
	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue item %d not processing: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *QueueRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec queue update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
