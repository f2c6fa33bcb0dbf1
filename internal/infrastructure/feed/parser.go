package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

const (
	trendsNamespace   = "ht"
	trafficMissing    = "N/A"
	newsSourceMissing = "Unknown"
)

// Parser reads the RSS trends feed, including its ht:* extension elements.
type Parser struct {
	logger *slog.Logger
}

var _ ports.FeedParser = (*Parser)(nil)

// NewParser builds a parser; logger may be nil.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse returns candidate trends in feed order. Items missing required
// fields are skipped and logged.
func (p *Parser) Parse(payload []byte) ([]domain.RawTrend, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("%w: feed has no items", domain.ErrParse)
	}

	trends := make([]domain.RawTrend, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item == nil {
			continue
		}
		trend, ok := p.toRawTrend(i, item)
		if !ok {
			continue
		}
		trends = append(trends, trend)
	}

	p.debug("feed parsed", "items", len(parsed.Items), "trends", len(trends))
	return trends, nil
}

func (p *Parser) toRawTrend(index int, item *gofeed.Item) (domain.RawTrend, bool) {
	title := cleanText(item.Title)
	if title == "" {
		p.warn("skip feed item without title", "index", index)
		return domain.RawTrend{}, false
	}

	ht := item.Extensions[trendsNamespace]

	traffic := firstValue(ht, "approx_traffic")
	if traffic == "" {
		traffic = trafficMissing
	}

	trend := domain.RawTrend{
		Title:         title,
		Traffic:       traffic,
		PublishedAt:   item.PublishedParsed,
		PictureURL:    firstValue(ht, "picture"),
		PictureSource: cleanText(firstValue(ht, "picture_source")),
	}

	for j, news := range ht["news_item"] {
		newsTitle := cleanText(childValue(news, "news_item_title"))
		newsURL := childValue(news, "news_item_url")
		if newsTitle == "" || newsURL == "" {
			p.warn("skip news item without title or url", "trend", title, "index", j)
			continue
		}
		source := cleanText(childValue(news, "news_item_source"))
		if source == "" {
			source = newsSourceMissing
		}
		trend.News = append(trend.News, domain.RawNewsItem{
			Title:      newsTitle,
			URL:        newsURL,
			Source:     source,
			PictureURL: childValue(news, "news_item_picture"),
		})
	}

	return trend, true
}

func firstValue(elements map[string][]ext.Extension, name string) string {
	values := elements[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func childValue(parent ext.Extension, name string) string {
	return firstValue(parent.Children, name)
}

// cleanText decodes HTML entities that survive XML decoding in feed titles.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "&<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func (p *Parser) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Parser) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
