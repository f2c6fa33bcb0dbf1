package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/metrics"
	"TrendsScanner/internal/ports"
)

// EnricherDeps wires the adapters used by the enrichment worker.
type EnricherDeps struct {
	Trends     ports.TrendRepository
	Categories ports.CategoryRepository
	Generator  ports.Generator
	Selector   ports.ModelSelector
}

// EnrichOptions tunes concurrency, pacing and generation limits.
type EnrichOptions struct {
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxTokens         int
}

// Enricher generates and stores summary, article, FAQ and category for
// trends. Each trend is processed in isolation.
type Enricher struct {
	trends      ports.TrendRepository
	categories  ports.CategoryRepository
	generator   ports.Generator
	selector    ports.ModelSelector
	limiter     *rate.Limiter
	concurrency int
	timeout     time.Duration
	maxTokens   int
	now         func() time.Time
	logger      *slog.Logger
}

var _ ports.Enricher = (*Enricher)(nil)

// NewEnricher constructs the worker. A non-positive rate disables pacing.
func NewEnricher(deps EnricherDeps, opts EnrichOptions, logger *slog.Logger) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		trends:      deps.Trends,
		categories:  deps.Categories,
		generator:   deps.Generator,
		selector:    deps.Selector,
		limiter:     rate.NewLimiter(limit, opts.Burst),
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		maxTokens:   opts.MaxTokens,
		now:         time.Now,
		logger:      logger,
	}
}

// EnrichBatch returns one result per id, in input order. The only
// batch-level failure is being unable to load the categories.
func (e *Enricher) EnrichBatch(ctx context.Context, trendIDs []int64) ([]domain.EnrichmentResult, error) {
	if len(trendIDs) == 0 {
		return nil, nil
	}

	categories, err := e.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	index := newCategoryIndex(categories)

	results := make([]domain.EnrichmentResult, len(trendIDs))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range trendIDs {
		g.Go(func() error {
			results[i] = e.enrichOne(ctx, id, index)
			metrics.RecordEnrichment(results[i].Success)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (e *Enricher) enrichOne(ctx context.Context, id int64, index *categoryIndex) domain.EnrichmentResult {
	result := domain.EnrichmentResult{TrendID: id}
	logger := e.logger.With("trend_id", id)

	content, err := e.generate(ctx, id, index, logger)
	if err != nil {
		logger.Warn("enrichment failed", "error", err)
		result.Error = err.Error()
		return result
	}

	name, categoryID := index.resolve(content.Category)
	err = e.trends.SaveEnrichment(ctx, id, domain.Enrichment{
		Summary:     content.Summary,
		Article:     content.Article,
		FAQ:         content.FAQ,
		CategoryID:  categoryID,
		GeneratedAt: e.now().UTC(),
	})
	if err != nil {
		logger.Warn("enrichment not saved", "error", err)
		result.Error = fmt.Sprintf("save enrichment: %v", err)
		return result
	}

	logger.Info("trend enriched",
		"category", name,
		"summary_length", len(content.Summary),
		"article_length", len(content.Article),
		"faq_count", len(content.FAQ))

	result.Success = true
	result.Summary = content.Summary
	result.Article = content.Article
	result.FAQ = content.FAQ
	result.Category = name
	result.CategoryID = categoryID
	return result
}

func (e *Enricher) generate(ctx context.Context, id int64, index *categoryIndex, logger *slog.Logger) (GeneratedContent, error) {
	trend, news, err := e.trends.GetTrendWithNews(ctx, id)
	if err != nil {
		return GeneratedContent{}, err
	}
	if len(news) == 0 {
		return GeneratedContent{}, fmt.Errorf("%w: trend %d", domain.ErrNoContent, id)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return GeneratedContent{}, fmt.Errorf("%w: rate limiter: %v", domain.ErrGeneration, err)
	}

	var model string
	if e.selector != nil {
		model = e.selector.Next()
	}
	logger.Debug("generating", "title", trend.Title, "model", model, "news_items", len(news))

	start := time.Now()
	text, err := e.generator.Generate(ctx, ports.GenerateRequest{
		Prompt:    BuildPrompt(trend.Title, news, index.names),
		Model:     model,
		MaxTokens: e.maxTokens,
		Timeout:   e.timeout,
	})
	metrics.RecordGeneration(model, err == nil, time.Since(start).Seconds())
	if err != nil {
		return GeneratedContent{}, err
	}

	return ParseResponse(text)
}
