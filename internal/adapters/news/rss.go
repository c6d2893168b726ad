package news

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
	"github.com/okian/storyline/pkg/retry"
)

// DefaultRSSEndpoint is the Google News RSS search endpoint.
const DefaultRSSEndpoint = "https://news.google.com/rss/search"

// RSS searches a news RSS search feed.
type RSS struct {
	parser *gofeed.Parser
	opts   options
}

// NewRSS creates an RSS search source.
func NewRSS(opts ...Option) *RSS {
	o := newOptions(DefaultRSSEndpoint, "news.rss", opts)
	p := gofeed.NewParser()
	p.Client = o.client
	return &RSS{parser: p, opts: o}
}

// Search returns up to the page size of feed items, newest first.
func (r *RSS) Search(ctx context.Context, query string) ([]model.Article, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", r.opts.language)
	target := r.opts.endpoint + "?" + q.Encode()

	var feed *gofeed.Feed
	started := time.Now()
	err := retry.Do(ctx, r.opts.retry, func(ctx context.Context) error {
		f, err := r.parser.ParseURLWithContext(target, ctx)
		if err != nil {
			var httpErr gofeed.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
				return retry.Permanent(fmt.Errorf("%w: status %d", ErrUpstream, httpErr.StatusCode))
			}
			return err
		}
		feed = f
		return nil
	})
	metrics.RecordExternalCall("rss", "search", time.Since(started), err)
	if err != nil {
		return nil, err
	}

	items := feed.Items
	sortNewestFirst(items)
	if len(items) > r.opts.pageSize {
		items = items[:r.opts.pageSize]
	}

	articles := make([]model.Article, 0, len(items))
	for _, it := range items {
		if it.Link == "" {
			continue
		}
		a := model.Article{
			Title: strings.TrimSpace(it.Title),
			URL:   it.Link,
			Text:  plainText(it.Description),
		}
		if it.PublishedParsed != nil {
			a.PublishedAt = it.PublishedParsed.UTC().Format(time.DateOnly)
		}
		articles = append(articles, a)
	}
	r.opts.logger.Debug(ctx, "feed items fetched",
		logger.String("query", query),
		logger.Int("articles", len(articles)),
	)
	return articles, nil
}

func sortNewestFirst(items []*gofeed.Item) {
	published := func(it *gofeed.Item) time.Time {
		if it.PublishedParsed == nil {
			return time.Time{}
		}
		return *it.PublishedParsed
	}
	sort.SliceStable(items, func(i, j int) bool {
		return published(items[i]).After(published(items[j]))
	})
}

// plainText drops the markup feeds embed in descriptions.
func plainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
