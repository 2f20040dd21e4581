package news

import (
	"context"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
	"QuantLens/internal/service/ratelimit"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const maxConcurrentSymbols = 4

// Fetcher merges every configured source per symbol. A failing source is
// logged and skipped; the remaining sources still contribute.
type Fetcher struct {
	sources  []Source
	queries  map[string]string
	pageSize int
	now      func() time.Time
	log      *logger.Logger
}

type Option func(*Fetcher)

// WithQueries maps symbols to search phrases, e.g. "AAPL" -> `"Apple Inc"`.
func WithQueries(q map[string]string) Option {
	return func(f *Fetcher) { f.queries = q }
}

func WithPageSize(n int) Option {
	return func(f *Fetcher) { f.pageSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func NewFetcher(sources []Source, log *logger.Logger, opts ...Option) *Fetcher {
	if log == nil {
		log = logger.Nop()
	}
	f := &Fetcher{
		sources:  sources,
		queries:  map[string]string{},
		pageSize: 10,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFetcherFromConfig wires every keyed API source whose credential is present
// and the RSS feed when a base URL is configured.
func NewFetcherFromConfig(cfg *config.Config, limiter *ratelimit.Limiter, log *logger.Logger) *Fetcher {
	nc := cfg.News
	client := xhttp.NewClient(xhttp.WithTimeout(nc.Timeout))
	var sources []Source
	if nc.NewsAPIKey != "" {
		sources = append(sources, NewNewsAPISource(nc.NewsAPIURL, nc.NewsAPIKey, client, log,
			WithRateLimit(limiter, nc.RatePerSec)))
	}
	if nc.MediaStackKey != "" {
		sources = append(sources, NewMediaStackSource(nc.MediaStackURL, nc.MediaStackKey, client, log,
			WithRateLimit(limiter, nc.RatePerSec)))
	}
	if nc.TwitterToken != "" {
		sources = append(sources, NewTwitterSource(nc.TwitterURL, nc.TwitterToken, client, log,
			WithRateLimit(limiter, nc.RatePerSec)))
	}
	if nc.RSSBaseURL != "" {
		sources = append(sources, NewRSSSource(nc.RSSBaseURL, client, limiter, nc.RatePerSec))
	}
	return NewFetcher(sources, log, WithQueries(nc.Queries), WithPageSize(nc.PageSize))
}

// Sources reports how many upstreams are wired.
func (f *Fetcher) Sources() int { return len(f.sources) }

func (f *Fetcher) FetchNews(ctx context.Context, symbols []string, lookbackDays int) (map[string][]models.NewsArticle, error) {
	to := f.now().UTC()
	from := to.AddDate(0, 0, -max(lookbackDays, 1))

	var mu sync.Mutex
	out := make(map[string][]models.NewsArticle, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSymbols)
	for _, sym := range symbols {
		g.Go(func() error {
			articles := f.fetchSymbol(gctx, sym, from, to)
			mu.Lock()
			out[sym] = articles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchSymbol(ctx context.Context, symbol string, from, to time.Time) []models.NewsArticle {
	query := symbol
	if q, ok := f.queries[symbol]; ok && q != "" {
		query = q
	}

	var all []models.NewsArticle
	for _, src := range f.sources {
		items, err := src.Fetch(ctx, query, from, to, f.pageSize)
		if err != nil {
			f.log.Warn("news source failed",
				logger.String("source", src.Name()),
				logger.String("symbol", symbol),
				logger.Error(err),
			)
			continue
		}
		all = append(all, items...)
	}

	unique := Dedupe(all)
	SortNewestFirst(unique)
	if limit := f.pageSize * 3; limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

var _ service.NewsFetcher = (*Fetcher)(nil)
