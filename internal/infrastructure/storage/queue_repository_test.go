package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendsScanner/internal/domain"
)

var queueRowColumns = []string{
	"id", "trend_id", "trend_title", "status", "attempts", "max_attempts", "batch_id", "error", "created_at", "processed_at",
}

func newQueueRepo(t *testing.T) (*QueueRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewQueueRepository(db, 3)
	frozen := time.Date(2025, time.October, 19, 14, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }
	return repo, mock, db
}

func TestQueueRepository_Enqueue(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		created bool
	}{
		{name: "new item", rows: sqlmock.NewRows([]string{"id"}).AddRow(11), created: true},
		{name: "live item exists", rows: sqlmock.NewRows([]string{"id"}), created: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, _ := newQueueRepo(t)

			mock.ExpectQuery("INSERT INTO summary_queue").
				WithArgs(int64(7), "World Cup Final", "pending", 0, 3, sqlmock.AnyArg()).
				WillReturnRows(tt.rows)

			created, err := repo.Enqueue(context.Background(), domain.QueueItem{TrendID: 7, TrendTitle: "World Cup Final"})
			require.NoError(t, err)
			assert.Equal(t, tt.created, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueueRepository_ClaimBatchOrdersOldestFirst(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	older := time.Date(2025, time.October, 19, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	claimed := time.Date(2025, time.October, 19, 14, 30, 0, 0, time.UTC)
	batch := "6f1c2b1e-4d7a-4a53-9a5e-2f0d1c9b8e71"

	rows := sqlmock.NewRows(queueRowColumns).
		AddRow(5, 50, "Later", "processing", 1, 3, batch, nil, newer, claimed).
		AddRow(2, 20, "Earlier", "processing", 2, 3, batch, "timeout", older, claimed)

	mock.ExpectQuery(`UPDATE summary_queue SET status = .+ WHERE id IN \(SELECT id FROM summary_queue .+ FOR UPDATE SKIP LOCKED\)`).
		WithArgs("processing", sqlmock.AnyArg(), sqlmock.AnyArg(), "pending").
		WillReturnRows(rows)

	items, err := repo.ClaimBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(2), items[0].ID)
	assert.Equal(t, int64(5), items[1].ID)
	assert.Equal(t, domain.QueueProcessing, items[0].Status)
	require.NotNil(t, items[0].BatchID)
	assert.Equal(t, batch, items[0].BatchID.String())
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "timeout", *items[0].LastError)
	assert.Nil(t, items[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ClaimBatchZeroLimit(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	items, err := repo.ClaimBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_MarkFailedOrRetry(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		want    domain.QueueStatus
		wantErr error
	}{
		{name: "attempts left", rows: sqlmock.NewRows([]string{"status"}).AddRow("pending"), want: domain.QueuePending},
		{name: "exhausted", rows: sqlmock.NewRows([]string{"status"}).AddRow("failed"), want: domain.QueueFailed},
		{name: "not processing", rows: sqlmock.NewRows([]string{"status"}), wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, _ := newQueueRepo(t)

			mock.ExpectQuery("UPDATE summary_queue SET status = CASE WHEN attempts >= max_attempts").
				WithArgs("generation timed out", sqlmock.AnyArg(), int64(9), "processing").
				WillReturnRows(tt.rows)

			status, err := repo.MarkFailedOrRetry(context.Background(), 9, "generation timed out")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueueRepository_MarkCompleted(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	mock.ExpectExec("UPDATE summary_queue SET status").
		WithArgs("completed", sqlmock.AnyArg(), int64(4), "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE summary_queue SET status").
		WithArgs("completed", sqlmock.AnyArg(), int64(4), "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkCompleted(context.Background(), 4))

	err := repo.MarkCompleted(context.Background(), 4)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ReleaseRefundsAttempt(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	mock.ExpectExec(`UPDATE summary_queue SET .*attempts = GREATEST\(attempts - 1, 0\) WHERE id = ANY`).
		WithArgs("pending", nil, nil, "worker unreachable", pq.Array([]int64{1, 2}), "processing").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.Release(context.Background(), []int64{1, 2}, "worker unreachable")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.Release(context.Background(), nil, "ignored")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ResetStuck(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	cutoff := time.Date(2025, time.October, 19, 14, 20, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE summary_queue SET .* WHERE status = \$\d+ AND processed_at < \$\d+`).
		WithArgs(nil, stuckError, "processing", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ResetStuck(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_Stats(t *testing.T) {
	repo, mock, _ := newQueueRepo(t)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM summary_queue GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("processing", 1).
			AddRow("completed", 10).
			AddRow("failed", 2))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Total: 17, Pending: 4, Processing: 1, Completed: 10, Failed: 2}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
