package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TrendsScanner/internal/domain"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:atom="http://www.w3.org/2005/Atom" xmlns:ht="https://trends.google.com/trending/rss" version="2.0">
  <channel>
    <title>Daily Search Trends</title>
    <item>
      <title>World Cup Final</title>
      <ht:approx_traffic>500000+</ht:approx_traffic>
      <pubDate>Sun, 19 Oct 2025 10:00:00 -0700</pubDate>
      <ht:picture>https://img.example.com/wc.jpg</ht:picture>
      <ht:picture_source>Sports Daily</ht:picture_source>
      <ht:news_item>
        <ht:news_item_title>Final ends in penalties</ht:news_item_title>
        <ht:news_item_url>https://news.example.com/a</ht:news_item_url>
        <ht:news_item_picture>https://img.example.com/a.jpg</ht:news_item_picture>
        <ht:news_item_source>Example News</ht:news_item_source>
      </ht:news_item>
      <ht:news_item>
        <ht:news_item_title>Fans celebrate &amp;#39;historic&amp;#39; win</ht:news_item_title>
        <ht:news_item_url>https://news.example.com/b</ht:news_item_url>
      </ht:news_item>
      <ht:news_item>
        <ht:news_item_title>Missing url</ht:news_item_title>
      </ht:news_item>
    </item>
    <item>
      <title>Quiet Topic</title>
    </item>
    <item>
      <title></title>
      <ht:approx_traffic>100+</ht:approx_traffic>
    </item>
  </channel>
</rss>`

func TestParserParse(t *testing.T) {
	t.Parallel()

	trends, err := NewParser(nil).Parse([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(trends) != 2 {
		t.Fatalf("expected 2 trends, got %d", len(trends))
	}

	first := trends[0]
	if first.Title != "World Cup Final" {
		t.Fatalf("unexpected title: %q", first.Title)
	}
	if first.Traffic != "500000+" {
		t.Fatalf("unexpected traffic: %q", first.Traffic)
	}
	if first.PictureURL != "https://img.example.com/wc.jpg" || first.PictureSource != "Sports Daily" {
		t.Fatalf("unexpected picture: %q / %q", first.PictureURL, first.PictureSource)
	}
	if first.PublishedAt == nil || first.PublishedAt.UTC().Hour() != 17 {
		t.Fatalf("unexpected published at: %v", first.PublishedAt)
	}
	if len(first.News) != 2 {
		t.Fatalf("expected 2 news items, got %d", len(first.News))
	}
	if first.News[0].Source != "Example News" || first.News[0].PictureURL != "https://img.example.com/a.jpg" {
		t.Fatalf("unexpected first news item: %+v", first.News[0])
	}
	if first.News[1].Source != newsSourceMissing {
		t.Fatalf("expected default source, got %q", first.News[1].Source)
	}
	if first.News[1].Title != "Fans celebrate 'historic' win" {
		t.Fatalf("entities not decoded: %q", first.News[1].Title)
	}

	second := trends[1]
	if second.Title != "Quiet Topic" || second.Traffic != trafficMissing {
		t.Fatalf("unexpected defaults: %+v", second)
	}
	if second.PictureURL != "" || len(second.News) != 0 {
		t.Fatalf("expected empty optional fields: %+v", second)
	}
}

func TestParserRejectsStructurelessPayload(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not xml":  "hello world",
		"no items": `<rss version="2.0"><channel><title>x</title></channel></rss>`,
	}
	for name, payload := range cases {
		_, err := NewParser(nil).Parse([]byte(payload))
		if !errors.Is(err, domain.ErrParse) {
			t.Fatalf("%s: expected ErrParse, got %v", name, err)
		}
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	if got := cleanText("  plain  "); got != "plain" {
		t.Fatalf("unexpected plain text: %q", got)
	}
	if got := cleanText("Tom &amp; Jerry"); got != "Tom & Jerry" {
		t.Fatalf("unexpected decoded text: %q", got)
	}
}

func TestHTTPFetcherFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "no-cache" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	captured := time.Date(2025, time.October, 19, 14, 30, 0, 0, time.UTC)
	fetcher := NewHTTPFetcher(server.URL, "", server.Client())
	fetcher.now = func() time.Time { return captured }

	payload, at, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(payload) != sampleFeed {
		t.Fatalf("unexpected payload length %d", len(payload))
	}
	if !at.Equal(captured) {
		t.Fatalf("unexpected capture time: %v", at)
	}
}

func TestHTTPFetcherNon2xx(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, _, err := NewHTTPFetcher(server.URL, "", server.Client()).Fetch(context.Background())
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
