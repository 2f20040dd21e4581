package news

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"QuantLens/internal/domain/models"
	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/internal/service/ratelimit"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"
)

// Source fetches articles matching query published within [from, to].
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string, from, to time.Time, pageSize int) ([]models.NewsArticle, error)
}

const (
	titleKeyLen     = 50
	defaultAttempts = 3
)

// httpSource carries what the JSON API sources share: the endpoint, client,
// rate limit and retry policy.
type httpSource struct {
	name       string
	endpoint   string
	client     *xhttp.Client
	limiter    *ratelimit.Limiter
	ratePerSec float64
	attempts   int
	backoff    time.Duration
	log        *logger.Logger
}

type SourceOption func(*httpSource)

// WithBackoff sets the base retry delay; attempt n waits n times this.
func WithBackoff(d time.Duration) SourceOption {
	return func(s *httpSource) { s.backoff = d }
}

func WithRateLimit(l *ratelimit.Limiter, perSec float64) SourceOption {
	return func(s *httpSource) {
		s.limiter = l
		s.ratePerSec = perSec
	}
}

func newHTTPSource(name, endpoint string, client *xhttp.Client, backoff time.Duration, log *logger.Logger, opts []SourceOption) httpSource {
	if log == nil {
		log = logger.Nop()
	}
	s := httpSource{
		name:     name,
		endpoint: endpoint,
		client:   client,
		attempts: defaultAttempts,
		backoff:  backoff,
		log:      log.With(logger.String("source", name)),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s *httpSource) Name() string { return s.name }

// retry runs call until it succeeds, fails permanently or runs out of attempts.
func (s *httpSource) retry(ctx context.Context, query string, call func() error) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = s.send(ctx, call); err == nil || !retryable(err) {
			return err
		}
		s.log.Debug("news request failed", logger.String("query", query), logger.Int("attempt", attempt+1), logger.Error(err))
	}
	return err
}

func (s *httpSource) send(ctx context.Context, call func() error) (err error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.name, 1, s.ratePerSec); err != nil {
			return err
		}
	}
	defer svcmetrics.Observe(s.name, time.Now(), &err)
	return call()
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// unquote strips phrase quotes for APIs that take plain keywords.
func unquote(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(query, `"`, ""))
}

// Dedupe keeps the first article per URL; articles without a new URL are kept
// only when the first 50 characters of their title have not been seen.
func Dedupe(articles []models.NewsArticle) []models.NewsArticle {
	seenURL := make(map[string]struct{}, len(articles))
	seenTitle := make(map[string]struct{}, len(articles))
	out := make([]models.NewsArticle, 0, len(articles))
	for _, a := range articles {
		u := strings.ToLower(strings.TrimSpace(a.URL))
		title := titleKey(a.Title)
		if _, ok := seenURL[u]; u != "" && !ok {
			seenURL[u] = struct{}{}
			seenTitle[title] = struct{}{}
			out = append(out, a)
			continue
		}
		if _, ok := seenTitle[title]; title != "" && !ok {
			seenTitle[title] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func titleKey(title string) string {
	t := []rune(strings.ToLower(strings.TrimSpace(title)))
	if len(t) > titleKeyLen {
		t = t[:titleKeyLen]
	}
	return string(t)
}

// SortNewestFirst orders articles by publication time, most recent first.
func SortNewestFirst(articles []models.NewsArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}
