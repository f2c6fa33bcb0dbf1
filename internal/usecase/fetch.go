package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TrendsScanner/internal/metrics"
	"TrendsScanner/internal/ports"
)

// Fetcher pulls the feed and archives the raw payload.
type Fetcher struct {
	source   ports.FeedSource
	blobs    ports.BlobStore
	location *time.Location
	label    string
	logger   *slog.Logger
}

// NewFetcher names payloads by capture minute in loc, suffixed with label.
func NewFetcher(source ports.FeedSource, blobs ports.BlobStore, loc *time.Location, label string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, blobs: blobs, location: loc, label: label, logger: logger}
}

// FetchAndStore downloads the feed once and returns the stored payload name.
// Fetch errors are returned as is so the caller can retry on its next tick.
func (f *Fetcher) FetchAndStore(ctx context.Context) (string, error) {
	payload, capturedAt, err := f.source.Fetch(ctx)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("error").Inc()
		return "", err
	}

	name := PayloadName(capturedAt, f.location, f.label)
	if err := f.blobs.Put(ctx, name, payload); err != nil {
		metrics.FetchTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("store payload %s: %w", name, err)
	}

	metrics.FetchTotal.WithLabelValues("success").Inc()
	f.logger.Info("feed payload stored", "name", name, "bytes", len(payload))
	return name, nil
}
