package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/metrics"
	"TrendsScanner/internal/ports"
)

const trafficMissing = "N/A"

// IngestorDeps wires the driven adapters used during ingestion.
type IngestorDeps struct {
	Blobs  ports.BlobStore
	Parser ports.FeedParser
	Runs   ports.RunRepository
	Trends ports.TrendRepository
	Queue  ports.QueueRepository
}

// IngestOptions tunes the coordinator.
type IngestOptions struct {
	Parallelism int
	MaxAttempts int
	Location    *time.Location
}

// Ingestor turns a stored payload into a run, trends, news items and queue
// entries.
type Ingestor struct {
	blobs       ports.BlobStore
	parser      ports.FeedParser
	runs        ports.RunRepository
	trends      ports.TrendRepository
	queue       ports.QueueRepository
	parallelism int
	maxAttempts int
	location    *time.Location
	now         func() time.Time
	logger      *slog.Logger
}

// NewIngestor constructs the ingestion coordinator.
func NewIngestor(deps IngestorDeps, opts IngestOptions, logger *slog.Logger) *Ingestor {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = domain.DefaultMaxAttempts
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		blobs:       deps.Blobs,
		parser:      deps.Parser,
		runs:        deps.Runs,
		trends:      deps.Trends,
		queue:       deps.Queue,
		parallelism: opts.Parallelism,
		maxAttempts: opts.MaxAttempts,
		location:    opts.Location,
		now:         time.Now,
		logger:      logger,
	}
}

// Ingest processes the payload stored under name into a new run.
func (i *Ingestor) Ingest(ctx context.Context, name string) (domain.RunSummary, error) {
	payload, err := i.blobs.Get(ctx, name)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("load payload %s: %w", name, err)
	}

	trends, err := i.parser.Parse(payload)
	if err != nil {
		return domain.RunSummary{}, err
	}

	now := i.now()
	run, err := i.runs.CreateRun(ctx, domain.RunBatch{
		Date:           LogicalDate(name, i.location, now),
		RunAt:          now,
		SourceFilename: name,
		ProcessedAt:    now,
	})
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("%w: create run for %s: %v", domain.ErrIngestion, name, err)
	}

	i.logger.Info("run created", "run_id", run.ID, "date", run.DateString(), "source", name, "trends", len(trends))
	return i.IngestRun(ctx, run, trends)
}

// IngestRun persists trends into an existing run. Re-running it with the
// same trends creates nothing new.
func (i *Ingestor) IngestRun(ctx context.Context, run domain.RunBatch, trends []domain.RawTrend) (domain.RunSummary, error) {
	var created, skipped, failed, newsCreated, enqueued atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.parallelism)
	for idx, raw := range trends {
		g.Go(func() error {
			out, err := i.ingestTrend(gctx, run, idx, raw)
			newsCreated.Add(int64(out.newsCreated))
			switch {
			case err != nil:
				failed.Add(1)
				i.logger.Warn("trend skipped", "run_id", run.ID, "title", raw.Title, "error", err)
			case out.created:
				created.Add(1)
			default:
				skipped.Add(1)
			}
			if out.enqueued {
				enqueued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.RunSummary{
		RunID:            run.ID,
		Date:             run.DateString(),
		TrendsCreated:    int(created.Load()),
		TrendsSkipped:    int(skipped.Load()),
		TrendsFailed:     int(failed.Load()),
		NewsItemsCreated: int(newsCreated.Load()),
		Enqueued:         int(enqueued.Load()),
	}
	metrics.RecordIngest(summary.TrendsCreated, summary.TrendsSkipped, summary.TrendsFailed, summary.NewsItemsCreated)
	metrics.RecordTransition(string(domain.QueuePending), summary.Enqueued)

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	i.logger.Info("run ingested",
		"run_id", summary.RunID,
		"created", summary.TrendsCreated,
		"skipped", summary.TrendsSkipped,
		"failed", summary.TrendsFailed,
		"news_items", summary.NewsItemsCreated,
		"enqueued", summary.Enqueued)
	return summary, nil
}

type trendOutcome struct {
	created     bool
	newsCreated int
	enqueued    bool
}

func (i *Ingestor) ingestTrend(ctx context.Context, run domain.RunBatch, position int, raw domain.RawTrend) (trendOutcome, error) {
	var out trendOutcome

	traffic := raw.Traffic
	if traffic == "" {
		traffic = trafficMissing
	}

	id, found, err := i.trends.FindTrendID(ctx, run.ID, raw.Title)
	if err != nil {
		return out, fmt.Errorf("look up trend: %w", err)
	}
	if !found {
		id, out.created, err = i.trends.InsertTrend(ctx, domain.Trend{
			RunID:         run.ID,
			Title:         raw.Title,
			Slug:          Slugify(raw.Title, run.DateString()),
			ApproxTraffic: traffic,
			Rank:          ParseRank(traffic),
			Position:      position,
			PictureURL:    raw.PictureURL,
			PictureSource: raw.PictureSource,
			PublishedAt:   raw.PublishedAt,
		})
		if err != nil {
			return out, fmt.Errorf("insert trend: %w", err)
		}
	}

	persisted := 0
	for _, n := range raw.News {
		ok, err := i.trends.UpsertNewsItem(ctx, domain.NewsItem{
			TrendID:     id,
			Title:       n.Title,
			URL:         n.URL,
			Source:      n.Source,
			PictureURL:  optional(n.PictureURL),
			PublishedAt: raw.PublishedAt,
		})
		if err != nil {
			i.logger.Warn("news item skipped", "trend_id", id, "url", n.URL, "error", err)
			continue
		}
		persisted++
		if ok {
			out.newsCreated++
		}
	}

	if !out.created {
		return out, nil
	}
	if persisted == 0 {
		i.logger.Debug("trend has no news items, not queued", "trend_id", id, "title", raw.Title)
		return out, nil
	}

	out.enqueued, err = i.queue.Enqueue(ctx, domain.QueueItem{
		TrendID:     id,
		TrendTitle:  raw.Title,
		MaxAttempts: i.maxAttempts,
	})
	if err != nil {
		return out, fmt.Errorf("enqueue trend %d: %w", id, err)
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
