package domain

import "errors"

// Invocation-level failures abort a fetch, ingest or drain call. Item-level
// failures are recorded on the queue item and retried.
var (
	ErrFetch         = errors.New("feed fetch failed")
	ErrParse         = errors.New("feed parse failed")
	ErrIngestion     = errors.New("ingestion failed")
	ErrNotFound      = errors.New("not found")
	ErrNoContent     = errors.New("no news items to summarize")
	ErrGeneration    = errors.New("text generation failed")
	ErrParseResponse = errors.New("generation response malformed")
)
