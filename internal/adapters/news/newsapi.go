package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
	"github.com/okian/storyline/pkg/retry"
)

// DefaultNewsAPIEndpoint is the NewsAPI full-text search endpoint.
const DefaultNewsAPIEndpoint = "https://newsapi.org/v2/everything"

// removedMarker is what NewsAPI puts in place of withdrawn articles.
const removedMarker = "[Removed]"

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Content     string `json:"content"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// NewsAPI searches newsapi.org for the most recent articles on a query.
type NewsAPI struct {
	apiKey string
	opts   options
}

// NewNewsAPI creates a NewsAPI source.
func NewNewsAPI(apiKey string, opts ...Option) (*NewsAPI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &NewsAPI{apiKey: apiKey, opts: newOptions(DefaultNewsAPIEndpoint, "news.newsapi", opts)}, nil
}

// Search returns up to the page size of articles, newest first.
func (n *NewsAPI) Search(ctx context.Context, query string) ([]model.Article, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("pageSize", strconv.Itoa(n.opts.pageSize))
	q.Set("sortBy", "publishedAt")
	q.Set("language", n.opts.language)
	q.Set("apiKey", n.apiKey)
	target := n.opts.endpoint + "?" + q.Encode()

	var body newsAPIResponse
	started := time.Now()
	err := retry.Do(ctx, n.opts.retry, func(ctx context.Context) error {
		return n.get(ctx, target, &body)
	})
	metrics.RecordExternalCall("newsapi", "search", time.Since(started), err)
	if err != nil {
		return nil, err
	}

	articles := make([]model.Article, 0, len(body.Articles))
	for _, a := range body.Articles {
		if a.URL == "" || a.Title == removedMarker {
			continue
		}
		text := a.Description
		if text == "" {
			text = a.Content
		}
		articles = append(articles, model.Article{
			Title:       a.Title,
			URL:         a.URL,
			Text:        text,
			PublishedAt: dayPrefix(a.PublishedAt),
		})
	}
	n.opts.logger.Debug(ctx, "articles fetched",
		logger.String("query", query),
		logger.Int("articles", len(articles)),
	)
	return articles, nil
}

func (n *NewsAPI) get(ctx context.Context, target string, out *newsAPIResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.opts.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	*out = newsAPIResponse{}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return statusError(resp.StatusCode, "", "")
		}
		return retry.Permanent(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	if resp.StatusCode != http.StatusOK || out.Status == "error" {
		return statusError(resp.StatusCode, out.Code, out.Message)
	}
	return nil
}

// statusError retries rate limiting and server errors and gives up on the rest.
func statusError(status int, code, message string) error {
	err := fmt.Errorf("%w: status %d %s %s", ErrUpstream, status, code, message)
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return err
	}
	return retry.Permanent(err)
}

// dayPrefix keeps the YYYY-MM-DD part of an RFC 3339 timestamp.
func dayPrefix(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}
