package domain

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the layout of a run's logical date.
const DateLayout = "2006-01-02"

// RunBatch is one fetch-and-ingest cycle. Rows are append-only.
type RunBatch struct {
	ID             int64
	Date           time.Time
	RunAt          time.Time
	SourceFilename string
	ProcessedAt    time.Time
}

// DateString formats the logical day of the run.
func (r RunBatch) DateString() string {
	return r.Date.Format(DateLayout)
}

// Trend is a single trending topic captured during a run. Position is the
// zero-based feed order and breaks ties between equal ranks.
type Trend struct {
	ID                 int64
	RunID              int64
	Title              string
	Slug               string
	ApproxTraffic      string
	Rank               int64
	Position           int
	PictureURL         string
	PictureSource      string
	PublishedAt        *time.Time
	CategoryID         *int64
	Summary            *string
	Article            *string
	FAQ                []FAQ
	SummaryGeneratedAt *time.Time
}

// Enriched reports whether the trend already carries generated content.
func (t Trend) Enriched() bool {
	return t.Summary != nil && t.SummaryGeneratedAt != nil
}

// FAQ is one generated question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewsItem is an article related to a trend. Summary is a legacy per-item
// field that the pipeline never writes.
type NewsItem struct {
	ID          int64
	TrendID     int64
	Title       string
	URL         string
	Source      string
	PictureURL  *string
	Summary     *string
	PublishedAt *time.Time
}

// Category is a pre-seeded classification bucket.
type Category struct {
	ID   int64
	Name string
	Slug string
}

// OtherCategory is the fallback category name.
const OtherCategory = "Other"

// Enrichment is the generated content persisted onto a trend in one update.
type Enrichment struct {
	Summary     string
	Article     string
	FAQ         []FAQ
	CategoryID  *int64
	GeneratedAt time.Time
}

// RawTrend is a candidate trend as it appears in the feed.
type RawTrend struct {
	Title         string
	Traffic       string
	PublishedAt   *time.Time
	PictureURL    string
	PictureSource string
	News          []RawNewsItem
}

// RawNewsItem is a candidate news item nested under a RawTrend.
type RawNewsItem struct {
	Title      string
	URL        string
	Source     string
	PictureURL string
}

// RunSummary reports what an ingestion run persisted.
type RunSummary struct {
	RunID            int64  `json:"run_id"`
	Date             string `json:"date"`
	TrendsCreated    int    `json:"trends_created"`
	TrendsSkipped    int    `json:"trends_skipped"`
	TrendsFailed     int    `json:"trends_failed"`
	NewsItemsCreated int    `json:"news_items_created"`
	Enqueued         int    `json:"enqueued"`
}

// EnrichmentResult is the per-trend outcome of an enrichment batch.
type EnrichmentResult struct {
	TrendID    int64  `json:"trend_id"`
	Success    bool   `json:"success"`
	Summary    string `json:"summary,omitempty"`
	Article    string `json:"article,omitempty"`
	FAQ        []FAQ  `json:"faq,omitempty"`
	Category   string `json:"category,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// QueueStatus enumerates queue item states.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// DefaultMaxAttempts bounds enrichment retries per queue item.
const DefaultMaxAttempts = 3

// QueueItem is one unit of enrichment work. ProcessedAt holds the claim time
// while processing and the completion time afterwards.
type QueueItem struct {
	ID          int64
	TrendID     int64
	TrendTitle  string
	Status      QueueStatus
	Attempts    int
	MaxAttempts int
	BatchID     *uuid.UUID
	LastError   *string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Exhausted reports whether no retry remains.
func (q QueueItem) Exhausted() bool {
	return q.Attempts >= q.MaxAttempts
}

// QueueStats counts queue items by status.
type QueueStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
