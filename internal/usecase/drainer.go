package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/metrics"
	"TrendsScanner/internal/ports"
)

const (
	noResultError  = "no result returned"
	finalizeBudget = 15 * time.Second
)

// DrainSummary reports what one drain invocation did.
type DrainSummary struct {
	BatchID   string `json:"batch_id,omitempty"`
	Reset     int64  `json:"reset"`
	Claimed   int    `json:"claimed"`
	Completed int    `json:"completed"`
	Retried   int    `json:"retried"`
	Failed    int    `json:"failed"`
	Released  int64  `json:"released"`
}

// DrainOptions tunes the drainer.
type DrainOptions struct {
	BatchSize    int
	StuckTimeout time.Duration
}

// Drainer claims a batch of queue items, dispatches it to the enricher and
// settles every claimed item.
type Drainer struct {
	queue        ports.QueueRepository
	enricher     ports.Enricher
	notifier     ports.Notifier
	batchSize    int
	stuckTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewDrainer constructs the drainer. notifier may be nil.
func NewDrainer(queue ports.QueueRepository, enricher ports.Enricher, notifier ports.Notifier, opts DrainOptions, logger *slog.Logger) *Drainer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.StuckTimeout <= 0 {
		opts.StuckTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{
		queue:        queue,
		enricher:     enricher,
		notifier:     notifier,
		batchSize:    opts.BatchSize,
		stuckTimeout: opts.StuckTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Drain runs one recover-claim-dispatch-settle cycle. An empty queue is not
// an error. A failed dispatch releases the batch and is returned.
func (d *Drainer) Drain(ctx context.Context) (DrainSummary, error) {
	var summary DrainSummary
	d.logStats(ctx, "queue stats before drain")

	reset, err := d.queue.ResetStuck(ctx, d.now().Add(-d.stuckTimeout))
	if err != nil {
		return summary, fmt.Errorf("reset stuck items: %w", err)
	}
	summary.Reset = reset
	if reset > 0 {
		d.logger.Warn("stuck items recovered", "count", reset, "timeout", d.stuckTimeout)
	}

	items, err := d.queue.ClaimBatch(ctx, d.batchSize)
	if err != nil {
		return summary, fmt.Errorf("claim batch: %w", err)
	}
	if len(items) == 0 {
		d.logger.Debug("queue empty")
		return summary, nil
	}

	summary.Claimed = len(items)
	if items[0].BatchID != nil {
		summary.BatchID = items[0].BatchID.String()
	}
	metrics.RecordTransition(string(domain.QueueProcessing), len(items))
	logger := d.logger.With("batch_id", summary.BatchID)

	trendIDs := make([]int64, len(items))
	for i, item := range items {
		trendIDs[i] = item.TrendID
		logger.Info("item claimed", "queue_id", item.ID, "trend_id", item.TrendID, "title", item.TrendTitle,
			"attempt", fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts))
	}

	results, dispatchErr := d.enricher.EnrichBatch(ctx, trendIDs)

	// Settle even when ctx expired during dispatch, otherwise the items stay
	// processing until the stuck sweep.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeBudget)
	defer cancel()

	if dispatchErr != nil {
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		released, err := d.queue.Release(settleCtx, ids, fmt.Sprintf("dispatch failed: %v", dispatchErr))
		summary.Released = released
		metrics.RecordTransition(string(domain.QueuePending), int(released))
		if err != nil {
			return summary, fmt.Errorf("dispatch batch: %w (release: %v)", dispatchErr, err)
		}
		logger.Error("batch dispatch failed, items released", "released", released, "error", dispatchErr)
		return summary, fmt.Errorf("dispatch batch: %w", dispatchErr)
	}

	byTrend := make(map[int64]domain.EnrichmentResult, len(results))
	for _, r := range results {
		byTrend[r.TrendID] = r
	}

	var failed []string
	for _, item := range items {
		r, ok := byTrend[item.TrendID]
		delete(byTrend, item.TrendID)

		if ok && r.Success {
			if err := d.queue.MarkCompleted(settleCtx, item.ID); err != nil {
				logger.Error("mark completed failed", "queue_id", item.ID, "error", err)
				continue
			}
			summary.Completed++
			continue
		}

		msg := noResultError
		if ok {
			msg = r.Error
			if msg == "" {
				msg = "enrichment failed"
			}
		}
		status, err := d.queue.MarkFailedOrRetry(settleCtx, item.ID, msg)
		if err != nil {
			logger.Error("mark failed failed", "queue_id", item.ID, "error", err)
			continue
		}
		if status == domain.QueueFailed {
			summary.Failed++
			failed = append(failed, fmt.Sprintf("%s (trend %d): %s", item.TrendTitle, item.TrendID, msg))
			logger.Warn("item failed permanently", "queue_id", item.ID, "trend_id", item.TrendID, "error", msg)
		} else {
			summary.Retried++
			logger.Info("item returned for retry", "queue_id", item.ID, "trend_id", item.TrendID, "error", msg)
		}
	}
	for trendID := range byTrend {
		logger.Warn("result for unclaimed trend ignored", "trend_id", trendID)
	}

	metrics.RecordTransition(string(domain.QueueCompleted), summary.Completed)
	metrics.RecordTransition(string(domain.QueuePending), summary.Retried)
	metrics.RecordTransition(string(domain.QueueFailed), summary.Failed)

	d.alert(settleCtx, summary.BatchID, failed)
	logger.Info("batch settled",
		"claimed", summary.Claimed,
		"completed", summary.Completed,
		"retried", summary.Retried,
		"failed", summary.Failed)
	d.logStats(settleCtx, "queue stats after drain")
	return summary, nil
}

func (d *Drainer) alert(ctx context.Context, batchID string, failed []string) {
	if d.notifier == nil || len(failed) == 0 {
		return
	}
	msg := fmt.Sprintf("%d enrichment item(s) failed permanently in batch %s:\n- %s",
		len(failed), batchID, strings.Join(failed, "\n- "))
	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.logger.Warn("failure alert not sent", "error", err)
	}
}

func (d *Drainer) logStats(ctx context.Context, msg string) {
	stats, err := d.queue.Stats(ctx)
	if err != nil {
		d.logger.Warn("queue stats unavailable", "error", err)
		return
	}
	d.logger.Info(msg,
		"total", stats.Total,
		"pending", stats.Pending,
		"processing", stats.Processing,
		"completed", stats.Completed,
		"failed", stats.Failed)
}
