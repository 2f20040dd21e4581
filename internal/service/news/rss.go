package news

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"QuantLens/internal/domain/models"
	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/internal/service/ratelimit"
	xhttp "QuantLens/pkg/http"

	"github.com/mmcdole/gofeed"
)

const rssName = "google_news"

// RSSSource reads a Google News style search feed.
type RSSSource struct {
	baseURL    string
	client     *xhttp.Client
	limiter    *ratelimit.Limiter
	ratePerSec float64
}

func NewRSSSource(baseURL string, client *xhttp.Client, limiter *ratelimit.Limiter, ratePerSec float64) *RSSSource {
	return &RSSSource{baseURL: baseURL, client: client, limiter: limiter, ratePerSec: ratePerSec}
}

func (s *RSSSource) Name() string { return rssName }

func (s *RSSSource) Fetch(ctx context.Context, query string, from, to time.Time, pageSize int) (_ []models.NewsArticle, err error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, rssName, 1, s.ratePerSec); err != nil {
			return nil, err
		}
	}
	defer svcmetrics.Observe(rssName, time.Now(), &err)

	var body []byte
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL,
		QueryParams: url.Values{
			"q":    {query},
			"hl":   {"en-US"},
			"gl":   {"US"},
			"ceid": {"US:en"},
		},
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("rss %q: %w", query, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse rss %q: %w", query, err)
	}

	out := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		var published time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}
		if !published.IsZero() && (published.Before(from) || published.After(to)) {
			continue
		}
		out = append(out, models.NewsArticle{
			Title:       item.Title,
			Snippet:     item.Description,
			PublishedAt: published,
			URL:         item.Link,
			Source:      feedSource(feed, item),
		})
		if pageSize > 0 && len(out) >= pageSize {
			break
		}
	}
	return out, nil
}

func feedSource(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if feed.Title != "" {
		return feed.Title
	}
	return rssName
}
