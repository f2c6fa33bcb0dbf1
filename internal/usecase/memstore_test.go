package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

// memStore is an in-memory stand-in for the postgres repositories. It keeps
// the same uniqueness rules and status-guarded queue transitions.
type memStore struct {
	mu sync.Mutex

	now func() time.Time

	runs       []domain.RunBatch
	trends     map[int64]domain.Trend
	news       map[int64][]domain.NewsItem
	categories []domain.Category
	queue      map[int64]*domain.QueueItem

	nextID int64

	failEnqueue error
	failSave    error
}

var (
	_ ports.RunRepository      = (*memStore)(nil)
	_ ports.TrendRepository    = (*memStore)(nil)
	_ ports.CategoryRepository = (*memStore)(nil)
	_ ports.QueueRepository    = (*memStore)(nil)
)

var seededCategories = []domain.Category{
	{ID: 1, Name: "Sports", Slug: "sports"},
	{ID: 2, Name: "Business & Finance", Slug: "business-finance"},
	{ID: 3, Name: "Technology", Slug: "technology"},
	{ID: 4, Name: "Other", Slug: "other"},
}

func newMemStore(clock *frozenClock) *memStore {
	return &memStore{
		now:        clock.Now,
		trends:     map[int64]domain.Trend{},
		news:       map[int64][]domain.NewsItem{},
		categories: append([]domain.Category(nil), seededCategories...),
		queue:      map[int64]*domain.QueueItem{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateRun(_ context.Context, run domain.RunBatch) (domain.RunBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.id()
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memStore) FindTrendID(_ context.Context, runID int64, title string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.trends {
		if t.RunID == runID && t.Title == title {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) InsertTrend(_ context.Context, trend domain.Trend) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.trends {
		if (t.RunID == trend.RunID && t.Title == trend.Title) || t.Slug == trend.Slug {
			return id, false, nil
		}
	}
	trend.ID = m.id()
	m.trends[trend.ID] = trend
	return trend.ID, true, nil
}

func (m *memStore) UpsertNewsItem(_ context.Context, item domain.NewsItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trends[item.TrendID]; !ok {
		return false, errors.New("foreign key violation")
	}
	for _, n := range m.news[item.TrendID] {
		if n.Title == item.Title && n.URL == item.URL {
			return false, nil
		}
	}
	item.ID = m.id()
	m.news[item.TrendID] = append(m.news[item.TrendID], item)
	return true, nil
}

func (m *memStore) GetTrendWithNews(_ context.Context, id int64) (domain.Trend, []domain.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trends[id]
	if !ok {
		return domain.Trend{}, nil, domain.ErrNotFound
	}
	return t, append([]domain.NewsItem(nil), m.news[id]...), nil
}

func (m *memStore) SaveEnrichment(_ context.Context, id int64, e domain.Enrichment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	t, ok := m.trends[id]
	if !ok {
		return domain.ErrNotFound
	}
	summary, article, at := e.Summary, e.Article, e.GeneratedAt
	t.Summary = &summary
	t.Article = &article
	t.FAQ = e.FAQ
	t.CategoryID = e.CategoryID
	t.SummaryGeneratedAt = &at
	m.trends[id] = t
	return nil
}

func (m *memStore) ListCategories(context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Category(nil), m.categories...), nil
}

func (m *memStore) Enqueue(_ context.Context, item domain.QueueItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEnqueue != nil {
		return false, m.failEnqueue
	}
	for _, q := range m.queue {
		if q.TrendID == item.TrendID && (q.Status == domain.QueuePending || q.Status == domain.QueueProcessing) {
			return false, nil
		}
	}
	item.ID = m.id()
	item.Status = domain.QueuePending
	item.Attempts = 0
	item.CreatedAt = m.now()
	m.queue[item.ID] = &item
	return true, nil
}

func (m *memStore) ClaimBatch(_ context.Context, limit int) ([]domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	var pending []*domain.QueueItem
	for _, q := range m.queue {
		if q.Status == domain.QueuePending && !q.Exhausted() {
			pending = append(pending, q)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	batch := uuid.New()
	now := m.now()
	out := make([]domain.QueueItem, 0, len(pending))
	for _, q := range pending {
		q.Status = domain.QueueProcessing
		q.BatchID = &batch
		q.Attempts++
		q.ProcessedAt = &now
		out = append(out, *q)
	}
	return out, nil
}

func (m *memStore) MarkCompleted(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queue[id]
	if !ok || q.Status != domain.QueueProcessing {
		return domain.ErrNotFound
	}
	now := m.now()
	q.Status = domain.QueueCompleted
	q.ProcessedAt = &now
	return nil
}

func (m *memStore) MarkFailedOrRetry(_ context.Context, id int64, errMsg string) (domain.QueueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queue[id]
	if !ok || q.Status != domain.QueueProcessing {
		return "", domain.ErrNotFound
	}
	q.LastError = &errMsg
	if q.Exhausted() {
		now := m.now()
		q.Status = domain.QueueFailed
		q.ProcessedAt = &now
	} else {
		q.Status = domain.QueuePending
		q.BatchID = nil
	}
	return q.Status, nil
}

func (m *memStore) Release(_ context.Context, ids []int64, errMsg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		q, ok := m.queue[id]
		if !ok || q.Status != domain.QueueProcessing {
			continue
		}
		msg := errMsg
		q.Status = domain.QueuePending
		q.BatchID = nil
		q.ProcessedAt = nil
		q.LastError = &msg
		q.Attempts = max(q.Attempts-1, 0)
		n++
	}
	return n, nil
}

func (m *memStore) ResetStuck(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, q := range m.queue {
		if q.Status != domain.QueueProcessing || q.ProcessedAt == nil || !q.ProcessedAt.Before(cutoff) {
			continue
		}
		msg := "processing timed out"
		q.LastError = &msg
		q.BatchID = nil
		if q.Exhausted() {
			q.Status = domain.QueueFailed
		} else {
			q.Status = domain.QueuePending
		}
		n++
	}
	return n, nil
}

func (m *memStore) Stats(context.Context) (domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.QueueStats
	for _, q := range m.queue {
		s.Total++
		switch q.Status {
		case domain.QueuePending:
			s.Pending++
		case domain.QueueProcessing:
			s.Processing++
		case domain.QueueCompleted:
			s.Completed++
		case domain.QueueFailed:
			s.Failed++
		}
	}
	return s, nil
}

// queueItems returns a snapshot of every queue item ordered by id.
func (m *memStore) queueItems() []domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QueueItem, 0, len(m.queue))
	for _, q := range m.queue {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) trendBySlug(slug string) (domain.Trend, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trends {
		if t.Slug == slug {
			return t, true
		}
	}
	return domain.Trend{}, false
}

func (m *memStore) trendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trends)
}

func (m *memStore) newsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, items := range m.news {
		n += len(items)
	}
	return n
}

type frozenClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFrozenClock(t time.Time) *frozenClock {
	return &frozenClock{t: t}
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *frozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{files: map[string][]byte{}}
}

func (b *memBlobs) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type stubSource struct {
	payload    []byte
	capturedAt time.Time
	err        error
}

func (s stubSource) Fetch(context.Context) ([]byte, time.Time, error) {
	return s.payload, s.capturedAt, s.err
}

// scriptedGenerator answers every prompt with respond and records the
// requests it saw.
type scriptedGenerator struct {
	mu       sync.Mutex
	respond  func(req ports.GenerateRequest) (string, error)
	requests []ports.GenerateRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.respond(req)
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fixedModel string

func (f fixedModel) Next() string { return string(f) }

type enricherFunc func(ctx context.Context, ids []int64) ([]domain.EnrichmentResult, error)

func (f enricherFunc) EnrichBatch(ctx context.Context, ids []int64) ([]domain.EnrichmentResult, error) {
	return f(ctx, ids)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

const worldCupResponse = `CATEGORY: Sports
SUMMARY: The World Cup Final drew record audiences after a dramatic penalty shootout.
ARTICLE:
The final was decided on penalties after a 2-2 draw.

- Record global viewership
- Goalkeeper saved two penalties
- Celebrations across the host city

FAQ:
Q1: Who won the World Cup Final?
A1: The home side won on penalties.
Q2: How many people watched?
A2: Broadcasters reported a record audience.
`

const worldCupFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:ht="https://trends.google.com/trending/rss" version="2.0">
  <channel>
    <title>Daily Search Trends</title>
    <item>
      <title>World Cup Final</title>
      <ht:approx_traffic>500,000+</ht:approx_traffic>
      <pubDate>Sun, 19 Oct 2025 10:00:00 -0700</pubDate>
      <ht:news_item>
        <ht:news_item_title>Final ends in penalties</ht:news_item_title>
        <ht:news_item_url>https://news.example.com/a</ht:news_item_url>
        <ht:news_item_source>Example News</ht:news_item_source>
      </ht:news_item>
      <ht:news_item>
        <ht:news_item_title>Fans celebrate historic win</ht:news_item_title>
        <ht:news_item_url>https://news.example.com/b</ht:news_item_url>
        <ht:news_item_source>Sports Daily</ht:news_item_source>
      </ht:news_item>
    </item>
    <item>
      <title>Quiet Topic</title>
      <ht:approx_traffic>200+</ht:approx_traffic>
    </item>
  </channel>
</rss>`
