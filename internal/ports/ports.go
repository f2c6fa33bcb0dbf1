package ports

import (
	"context"
	"time"

	"TrendsScanner/internal/domain"
)

// FeedSource pulls the raw trends payload from upstream.
type FeedSource interface {
	Fetch(ctx context.Context) ([]byte, time.Time, error)
}

// FeedParser turns a raw payload into candidate trends in feed order.
type FeedParser interface {
	Parse(payload []byte) ([]domain.RawTrend, error)
}

// BlobStore keeps raw payloads keyed by filename.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// RunRepository persists run batches.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.RunBatch) (domain.RunBatch, error)
}

// TrendRepository persists trends, their news items and enrichment output.
type TrendRepository interface {
	FindTrendID(ctx context.Context, runID int64, title string) (int64, bool, error)
	// InsertTrend reports created=false when an equivalent row already existed.
	InsertTrend(ctx context.Context, trend domain.Trend) (int64, bool, error)
	UpsertNewsItem(ctx context.Context, item domain.NewsItem) (bool, error)
	GetTrendWithNews(ctx context.Context, id int64) (domain.Trend, []domain.NewsItem, error)
	SaveEnrichment(ctx context.Context, id int64, enrichment domain.Enrichment) error
}

// CategoryRepository exposes the pre-seeded categories.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// QueueRepository is the durable enrichment queue. Every transition is a
// conditional update on the current status.
type QueueRepository interface {
	Enqueue(ctx context.Context, item domain.QueueItem) (bool, error)
	ClaimBatch(ctx context.Context, limit int) ([]domain.QueueItem, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailedOrRetry(ctx context.Context, id int64, errMsg string) (domain.QueueStatus, error)
	Release(ctx context.Context, ids []int64, errMsg string) (int64, error)
	ResetStuck(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// GenerateRequest describes one single-turn completion.
type GenerateRequest struct {
	Prompt    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ModelSelector picks the model identifier for the next generation call.
type ModelSelector interface {
	Next() string
}

// Enricher is the batch entry point of the enrichment worker.
type Enricher interface {
	EnrichBatch(ctx context.Context, trendIDs []int64) ([]domain.EnrichmentResult, error)
}

// Notifier raises alerts for items that need manual inspection.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Scheduler triggers jobs on cron expressions.
type Scheduler interface {
	Add(spec string, job func(time.Time)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
