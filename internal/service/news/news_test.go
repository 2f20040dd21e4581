package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testFrom = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	testTo   = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
)

func TestDedupe(t *testing.T) {
	in := []models.NewsArticle{
		{Title: "Apple beats estimates", URL: "https://a.example/1"},
		{Title: "Apple beats estimates (copy)", URL: "HTTPS://A.EXAMPLE/1 "},
		{Title: "apple BEATS estimates", URL: ""},
		{Title: "Fresh headline", URL: ""},
		{Title: "", URL: ""},
	}
	got := Dedupe(in)
	require.Len(t, got, 3)
	assert.Equal(t, "Apple beats estimates", got[0].Title)
	assert.Equal(t, "Apple beats estimates (copy)", got[1].Title)
	assert.Equal(t, "Fresh headline", got[2].Title)
}

func TestDedupeTitlePrefix(t *testing.T) {
	prefix := "Markets close higher as investors weigh the latest"
	got := Dedupe([]models.NewsArticle{
		{Title: prefix + " jobs data"},
		{Title: prefix + " inflation print"},
	})
	assert.Len(t, got, 1)
}

func TestSortNewestFirst(t *testing.T) {
	a := []models.NewsArticle{
		{Title: "old", PublishedAt: testFrom},
		{Title: "new", PublishedAt: testTo},
		{Title: "undated"},
	}
	SortNewestFirst(a)
	assert.Equal(t, []string{"new", "old", "undated"}, []string{a[0].Title, a[1].Title, a[2].Title})
}

const newsAPIBody = `{"status":"ok","articles":[
 {"title":"Apple beats","description":"Strong iPhone","url":"https://x/1","publishedAt":"2024-03-05T10:00:00Z","source":{"name":"Reuters"}},
 {"title":"Apple slips","description":"","url":"https://x/2","publishedAt":"2024-03-06T10:00:00Z","source":{"name":"Bloomberg"}}
]}`

func TestNewsAPISourceRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, `"Apple Inc"`, r.URL.Query().Get("q"))
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("from"))
		assert.Equal(t, "20", r.URL.Query().Get("pageSize"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(newsAPIBody))
	}))
	defer srv.Close()

	src := NewNewsAPISource(srv.URL, "key", xhttp.NewClient(), logger.Nop(), WithBackoff(time.Millisecond))
	got, err := src.Fetch(context.Background(), `"Apple Inc"`, testFrom, testTo, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Reuters", got[0].Source)
	assert.Equal(t, "Strong iPhone", got[0].Snippet)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), got[0].PublishedAt.UTC())
}

func TestNewsAPISourceGivesUpOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewNewsAPISource(srv.URL, "bad", xhttp.NewClient(), logger.Nop(), WithBackoff(time.Millisecond))
	_, err := src.Fetch(context.Background(), "AAPL", testFrom, testTo, 10)
	require.Error(t, err)
	var se *xhttp.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, int32(1), calls.Load())
}

const mediaStackBody = `{"pagination":{"limit":25},"data":[
 {"title":"Apple unveils chip","description":"M-series","url":"https://m/1","source":"CNBC","published_at":"2024-03-05T10:00:00+00:00"}
]}`

func TestMediaStackSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ms-key", q.Get("access_key"))
		assert.Equal(t, "Apple Inc", q.Get("keywords"), "phrase quotes are stripped")
		assert.Equal(t, "2024-03-01,2024-03-08", q.Get("date"))
		assert.Equal(t, "published_desc", q.Get("sort"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "25", q.Get("limit"))
		_, _ = w.Write([]byte(mediaStackBody))
	}))
	defer srv.Close()

	src := NewMediaStackSource(srv.URL, "ms-key", xhttp.NewClient(), logger.Nop(), WithBackoff(time.Millisecond))
	assert.Equal(t, "mediastack", src.Name())
	got, err := src.Fetch(context.Background(), `"Apple Inc"`, testFrom, testTo, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "CNBC", got[0].Source)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), got[0].PublishedAt.UTC())
}

func TestMediaStackLimitClamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	got, err := NewMediaStackSource(srv.URL, "k", xhttp.NewClient(), nil).Fetch(context.Background(), "AAPL", testFrom, testTo, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMediaStackSourceGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewMediaStackSource(srv.URL, "k", xhttp.NewClient(), logger.Nop(), WithBackoff(time.Millisecond))
	_, err := src.Fetch(context.Background(), "AAPL", testFrom, testTo, 10)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMediaStackErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_access_key","message":"You have not supplied a valid API Access Key."}}`))
	}))
	defer srv.Close()

	_, err := NewMediaStackSource(srv.URL, "bad", xhttp.NewClient(), nil).Fetch(context.Background(), "AAPL", testFrom, testTo, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_access_key")
}

const twitterBody = `{"data":[
 {"id":"101","text":"$AAPL looking strong into earnings","author_id":"7","created_at":"2024-03-06T09:30:00.000Z"},
 {"id":"102","text":"Apple supply chain worries","author_id":"8","created_at":"2024-03-06T10:00:00.000Z"}
],"includes":{"users":[{"id":"7","username":"trader"}]}}`

func TestTwitterSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "Apple -is:retweet lang:en", q.Get("query"))
		assert.Equal(t, "10", q.Get("max_results"))
		assert.Equal(t, "2024-03-01T00:00:00Z", q.Get("start_time"))
		_, _ = w.Write([]byte(twitterBody))
	}))
	defer srv.Close()

	got, err := NewTwitterSource(srv.URL, "tok", xhttp.NewClient(), nil).Fetch(context.Background(), `"Apple"`, testFrom, testTo, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://twitter.com/trader/status/101", got[0].URL)
	assert.Equal(t, "Twitter (@trader)", got[0].Source)
	assert.Equal(t, "Twitter (@unknown)", got[1].Source)
	assert.Equal(t, got[0].Title, got[0].Snippet)
	assert.Equal(t, time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC), got[0].PublishedAt.UTC())
}

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Google News</title>
<item><title>Microsoft rallies on cloud</title><link>https://n/1</link><pubDate>Wed, 06 Mar 2024 12:00:00 GMT</pubDate><description>Azure growth</description></item>
<item><title>Ancient story</title><link>https://n/2</link><pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate></item>
</channel></rss>`

func TestRSSSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSFT", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	got, err := NewRSSSource(srv.URL, xhttp.NewClient(), nil, 0).Fetch(context.Background(), "MSFT", testFrom, testTo, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "items outside the lookback window are dropped")
	assert.Equal(t, "Microsoft rallies on cloud", got[0].Title)
	assert.Equal(t, "Azure growth", got[0].Snippet)
	assert.Equal(t, "Google News", got[0].Source)
}

type stubSource struct {
	name    string
	err     error
	queries []string
	items   func(query string) []models.NewsArticle
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, query string, _, _ time.Time, _ int) ([]models.NewsArticle, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.items(query), nil
}

func TestFetcherMergesSources(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	primary := &stubSource{name: "primary", items: func(q string) []models.NewsArticle {
		var out []models.NewsArticle
		for i := 1; i <= 5; i++ {
			out = append(out, models.NewsArticle{Title: fmt.Sprintf("%s story %d", q, i), URL: fmt.Sprintf("https://p/%s/%d", q, i), PublishedAt: day(i)})
		}
		return out
	}}
	secondary := &stubSource{name: "secondary", items: func(q string) []models.NewsArticle {
		return []models.NewsArticle{{Title: q + " story 5", URL: fmt.Sprintf("https://p/%s/5", q), PublishedAt: day(5)}}
	}}
	broken := &stubSource{name: "broken", err: errors.New("down")}

	f := NewFetcher([]Source{primary, broken, secondary}, logger.Nop(),
		WithQueries(map[string]string{"AAPL": "Apple"}),
		WithPageSize(1),
		WithClock(func() time.Time { return testTo }),
	)

	got, err := f.FetchNews(context.Background(), []string{"AAPL"}, 7)
	require.NoError(t, err)
	require.Len(t, got["AAPL"], 3, "capped at page size times three")
	assert.Equal(t, "Apple story 5", got["AAPL"][0].Title)
	assert.Equal(t, "Apple story 3", got["AAPL"][2].Title)
	assert.Equal(t, []string{"Apple"}, primary.queries)
}

func TestFetcherWithoutSources(t *testing.T) {
	f := NewFetcher(nil, logger.Nop())
	got, err := f.FetchNews(context.Background(), []string{"AAPL", "MSFT"}, 7)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Empty(t, got["AAPL"])
}

func TestFetcherFromConfigWiresKeyedSources(t *testing.T) {
	cfg := config.Default()
	cfg.News.RSSBaseURL = ""
	assert.Equal(t, 0, NewFetcherFromConfig(cfg, nil, nil).Sources())

	cfg.News.NewsAPIKey = "n"
	cfg.News.MediaStackKey = "m"
	cfg.News.TwitterToken = "t"
	cfg.News.RSSBaseURL = "https://news.google.com/rss/search"
	assert.Equal(t, 4, NewFetcherFromConfig(cfg, nil, nil).Sources())
}
