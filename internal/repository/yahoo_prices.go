package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/internal/service/ratelimit"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	yahooName          = "yahoo_chart"
	yahooMaxConcurrent = 4
)

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooPriceFetcher reads daily adjusted closes from a Yahoo-style chart API.
type YahooPriceFetcher struct {
	baseURL    string
	client     *xhttp.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *ratelimit.Limiter
	ratePerSec float64
	inflight   singleflight.Group
	sharedTTL  time.Duration
	log        *logger.Logger
}

func NewYahooPriceFetcher(cfg *config.Config, limiter *ratelimit.Limiter, log *logger.Logger) *YahooPriceFetcher {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.String("upstream", yahooName))
	failures := max(cfg.Prices.BreakerFailures, 1)
	sharedTTL := cfg.Prices.DedupTimeout
	if sharedTTL <= 0 {
		sharedTTL = 30 * time.Second
	}
	return &YahooPriceFetcher{
		baseURL: cfg.Prices.BaseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Prices.Timeout), xhttp.WithUserAgent("Mozilla/5.0 (QuantLens)")),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    yahooName,
			Timeout: cfg.Prices.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				var se *xhttp.StatusError
				return err == nil || (errors.As(err, &se) && !se.Temporary())
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change",
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		}),
		limiter:    limiter,
		ratePerSec: cfg.Prices.RatePerSec,
		sharedTTL:  sharedTTL,
		log:        log,
	}
}

// FetchPrices fetches every symbol concurrently. Symbols that fail are
// logged and left out; an error is returned only when nothing was fetched.
func (f *YahooPriceFetcher) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (models.RawSeries, error) {
	var (
		mu   sync.Mutex
		out  = make(models.RawSeries, len(symbols))
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(yahooMaxConcurrent)
	for _, sym := range symbols {
		g.Go(func() error {
			points, err := f.fetchOne(gctx, sym, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.log.Warn("price fetch failed", logger.String("symbol", sym), logger.Error(err))
				errs = append(errs, err)
				return nil
			}
			out[sym] = points
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("fetch prices: %w", errors.Join(errs...))
	}
	return out, nil
}

// fetchOne collapses concurrent requests for the same symbol and range into
// one call. The shared call is detached from any single caller's context and
// bounded by sharedTTL; each caller still stops waiting when its own ctx ends.
func (f *YahooPriceFetcher) fetchOne(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, start.Unix(), end.Unix())
	ch := f.inflight.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.sharedTTL)
		defer cancel()
		return f.fetchChart(sctx, symbol, start, end)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.PricePoint), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *YahooPriceFetcher) fetchChart(ctx context.Context, symbol string, start, end time.Time) (_ []models.PricePoint, err error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, yahooName, max(f.ratePerSec, 1), f.ratePerSec); err != nil {
			return nil, err
		}
	}
	defer svcmetrics.Observe(yahooName, time.Now(), &err)

	if end.IsZero() {
		end = time.Now()
	}
	query := map[string][]string{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Add(24*time.Hour).Unix(), 10)},
		"interval": {"1d"},
		"events":   {"div,split"},
	}
	endpoint := f.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol)

	var resp yahooChartResponse
	_, err = f.breaker.Execute(func() (interface{}, error) {
		return nil, f.client.GetJSON(ctx, endpoint, query, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return parseChart(symbol, &resp)
}

func parseChart(symbol string, resp *yahooChartResponse) ([]models.PricePoint, error) {
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: empty chart result", symbol)
	}
	r := resp.Chart.Result[0]

	// adjusted close when present, raw close otherwise
	var closes []*float64
	if len(r.Indicators.AdjClose) > 0 {
		closes = r.Indicators.AdjClose[0].AdjClose
	}
	if len(closes) == 0 && len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	points := make([]models.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		v := *closes[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		points = append(points, models.PricePoint{Date: time.Unix(ts, 0).UTC(), Close: v})
	}
	return points, nil
}

var _ service.PriceFetcher = (*YahooPriceFetcher)(nil)
