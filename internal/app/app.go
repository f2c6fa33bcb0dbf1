package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"TrendsScanner/internal/config"
	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/infrastructure/blob"
	"TrendsScanner/internal/infrastructure/feed"
	"TrendsScanner/internal/infrastructure/httpapi"
	"TrendsScanner/internal/infrastructure/llm"
	"TrendsScanner/internal/infrastructure/scheduler"
	"TrendsScanner/internal/infrastructure/storage"
	"TrendsScanner/internal/infrastructure/telegram"
	"TrendsScanner/internal/infrastructure/worker"
	"TrendsScanner/internal/logging"
	"TrendsScanner/internal/ports"
	"TrendsScanner/internal/usecase"
)

// ErrNoEnricher is returned when neither a generation key nor a remote
// worker is configured.
var ErrNoEnricher = errors.New("no enrichment backend configured")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB

	queue    *storage.QueueRepository
	fetcher  *usecase.Fetcher
	ingestor *usecase.Ingestor
	local    *usecase.Enricher
	enricher ports.Enricher
	drainer  *usecase.Drainer
}

// New opens the database and builds every component from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, db: db}

	trends := storage.NewTrendRepository(db)
	categories := storage.NewCategoryRepository(db)
	a.queue = storage.NewQueueRepository(db, cfg.Ingest.MaxAttempts)

	source := feed.NewHTTPFetcher(cfg.Feed.URL, cfg.Feed.UserAgent, &http.Client{Timeout: cfg.Feed.Timeout})
	a.fetcher = usecase.NewFetcher(source, blobs, cfg.Feed.Location(), cfg.Feed.ZoneLabel,
		baseLogger.With("component", "fetcher"))

	a.ingestor = usecase.NewIngestor(usecase.IngestorDeps{
		Blobs:  blobs,
		Parser: feed.NewParser(baseLogger.With("component", "feed.parser")),
		Runs:   storage.NewRunRepository(db),
		Trends: trends,
		Queue:  a.queue,
	}, usecase.IngestOptions{
		Parallelism: cfg.Ingest.Parallelism,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		Location:    cfg.Feed.Location(),
	}, baseLogger.With("component", "ingestor"))

	if cfg.OpenAI.APIKey != "" {
		a.local, err = newLocalEnricher(cfg, trends, categories, baseLogger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	switch {
	case cfg.Worker.Endpoint != "":
		a.enricher = worker.NewClient(cfg.Worker.Endpoint, cfg.Worker.APIKey, cfg.Worker.Timeout)
	case a.local != nil:
		a.enricher = a.local
	}

	var notifier ports.Notifier
	tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	if tg.Configured() {
		notifier = tg
	}

	if a.enricher != nil {
		a.drainer = usecase.NewDrainer(a.queue, a.enricher, notifier, usecase.DrainOptions{
			BatchSize:    cfg.Queue.BatchSize,
			StuckTimeout: cfg.Queue.StuckTimeout,
		}, baseLogger.With("component", "drainer"))
	}

	return a, nil
}

func newBlobStore(ctx context.Context, cfg config.BlobConfig) (ports.BlobStore, error) {
	switch cfg.Driver {
	case "minio":
		return blob.NewMinioStore(ctx, cfg.MinIO)
	case "", "fs":
		return blob.NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

func newLocalEnricher(cfg config.Config, trends ports.TrendRepository, categories ports.CategoryRepository, logger *slog.Logger) (*usecase.Enricher, error) {
	selector, err := llm.NewSelectorRegistry().Resolve(cfg.Enrichment.ModelStrategy, cfg.Enrichment.Models)
	if err != nil {
		return nil, fmt.Errorf("model selector: %w", err)
	}

	generator, err := llm.NewOpenAIGenerator(cfg.OpenAI, cfg.Enrichment.Retries, cfg.Enrichment.Models[0],
		logger.With("component", "llm"))
	if err != nil {
		return nil, err
	}

	return usecase.NewEnricher(usecase.EnricherDeps{
		Trends:     trends,
		Categories: categories,
		Generator:  generator,
		Selector:   selector,
	}, usecase.EnrichOptions{
		Concurrency:       cfg.Enrichment.Concurrency,
		RequestsPerSecond: cfg.Enrichment.RequestsPerSecond,
		Burst:             cfg.Enrichment.Burst,
		Timeout:           cfg.Enrichment.Timeout,
		MaxTokens:         cfg.Enrichment.MaxTokens,
	}, logger.With("component", "enricher")), nil
}

// Close releases the database pool.
func (a *Application) Close() error {
	return a.db.Close()
}

// Migrate applies the embedded schema.
func (a *Application) Migrate(ctx context.Context) error {
	if err := storage.Migrate(ctx, a.db); err != nil {
		return err
	}
	a.logger.Info("schema applied")
	return nil
}

// RunFetch downloads and stores one payload, then ingests it when ingest is set.
func (a *Application) RunFetch(ctx context.Context, ingest bool) (string, *domain.RunSummary, error) {
	name, err := a.fetcher.FetchAndStore(ctx)
	if err != nil || !ingest {
		return name, nil, err
	}

	summary, err := a.ingestor.Ingest(ctx, name)
	if err != nil {
		return name, nil, err
	}
	return name, &summary, nil
}

// RunIngest ingests an already stored payload.
func (a *Application) RunIngest(ctx context.Context, name string) (domain.RunSummary, error) {
	return a.ingestor.Ingest(ctx, name)
}

// RunDrain runs one drain cycle.
func (a *Application) RunDrain(ctx context.Context) (usecase.DrainSummary, error) {
	if a.drainer == nil {
		return usecase.DrainSummary{}, ErrNoEnricher
	}
	return a.drainer.Drain(ctx)
}

// RunEnrich enriches the given trends directly, bypassing the queue.
func (a *Application) RunEnrich(ctx context.Context, ids []int64) ([]domain.EnrichmentResult, error) {
	if a.enricher == nil {
		return nil, ErrNoEnricher
	}
	return a.enricher.EnrichBatch(ctx, ids)
}

// Serve runs the HTTP API and the cron jobs until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	svc := httpapi.Services{
		Ingester: a.ingestor,
		Queue:    a.queue,
		Database: a.db,
	}
	if a.local != nil {
		svc.Enricher = a.local
	}
	if a.drainer != nil {
		svc.Drainer = a.drainer
	}

	router := httpapi.NewRouter(svc, a.cfg.Worker.APIKey, a.logger.With("component", "http"))
	server := httpapi.NewServer(a.cfg.Server.Addr, router, a.logger.With("component", "http"))

	jobs := []usecase.Job{{
		Name: "fetch",
		Spec: a.cfg.Scheduler.FetchCron,
		Run: func(ctx context.Context) error {
			_, _, err := a.RunFetch(ctx, true)
			return err
		},
	}}
	if a.drainer != nil {
		jobs = append(jobs, usecase.Job{
			Name: "drain",
			Spec: a.cfg.Scheduler.DrainCron,
			Run: func(ctx context.Context) error {
				_, err := a.drainer.Drain(ctx)
				return err
			},
		})
	} else {
		a.logger.Warn("drain job disabled", "error", ErrNoEnricher)
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.Location(), a.logger.With("component", "cron"))
	sched := usecase.NewScheduler(driver, a.logger.With("component", "scheduler"), jobs...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		return sched.Stop(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	return g.Wait()
}
