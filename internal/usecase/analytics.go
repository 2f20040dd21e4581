package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/domain/service"
	"QuantLens/internal/service/sentiment"
	"QuantLens/internal/services/analytics"
	"QuantLens/pkg/config"
	"QuantLens/pkg/logger"
	"QuantLens/pkg/util"

	"golang.org/x/sync/errgroup"
)

const (
	maxConcurrentForecasts = 4
	statsLookbackDays      = 14
	defaultHistoryPeriod   = "1y"
)

// Options are the analytics defaults applied when a request leaves them out.
type Options struct {
	Symbols          []string
	LookbackDays     int
	Indicators       analytics.IndicatorOptions
	RollingWindow    int
	SentimentAlpha   float64
	UseSentiment     bool
	ForecastOrder    [3]int
	NewsLookbackDays int
	Timeout          time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	a := cfg.Analytics
	return Options{
		Symbols:      util.NormalizeSymbols(a.Symbols),
		LookbackDays: a.LookbackDays,
		Indicators: analytics.IndicatorOptions{
			MomentumWindow: a.MomentumWindow,
			RSIPeriod:      a.RSIPeriod,
		},
		RollingWindow:    a.RollingWindow,
		SentimentAlpha:   a.SentimentAlpha,
		UseSentiment:     a.UseSentiment && cfg.News.Enabled,
		ForecastOrder:    a.ForecastOrder,
		NewsLookbackDays: cfg.News.LookbackDays,
		Timeout:          a.Timeout,
	}
}

// Request selects the universe and date range of one analytics call. Empty
// fields fall back to Options.
type Request struct {
	Symbols []string
	Start   time.Time
	End     time.Time
}

// Dataset is the aligned input every analytics operation starts from.
type Dataset struct {
	Prices  models.PriceTable
	Returns models.ReturnTable
	Meta    models.AnalysisMeta
}

// AnalyticsUseCase runs the analytics core against live collaborators.
type AnalyticsUseCase struct {
	prices     service.PriceFetcher
	news       service.NewsFetcher
	scorer     service.SentimentScorer
	forecaster *analytics.HybridForecaster
	metrics    domrepo.Metrics
	opts       Options
	log        *logger.Logger
	now        func() time.Time
}

// NewAnalyticsUseCase wires the use case. news and scorer may be nil, in which
// case sentiment is treated as absent (zero) everywhere. A nil metrics
// interface records nothing.
func NewAnalyticsUseCase(
	prices service.PriceFetcher,
	news service.NewsFetcher,
	scorer service.SentimentScorer,
	forecaster *analytics.HybridForecaster,
	metrics domrepo.Metrics,
	opts Options,
	log *logger.Logger,
) *AnalyticsUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Indicators.MomentumWindow <= 0 || opts.Indicators.RSIPeriod <= 0 {
		opts.Indicators = analytics.DefaultIndicatorOptions()
	}
	if opts.RollingWindow <= 1 {
		opts.RollingWindow = analytics.DefaultRollingWindow
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 365
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if news == nil || scorer == nil {
		opts.UseSentiment = false
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AnalyticsUseCase{
		prices:     prices,
		news:       news,
		scorer:     scorer,
		forecaster: forecaster,
		metrics:    metrics,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

func (uc *AnalyticsUseCase) Options() Options { return uc.opts }

func (uc *AnalyticsUseCase) resolve(req Request) Request {
	req.Symbols = util.NormalizeSymbols(req.Symbols)
	if len(req.Symbols) == 0 {
		req.Symbols = slices.Clone(uc.opts.Symbols)
	}
	if req.End.IsZero() {
		req.End = util.TruncateDay(uc.now().UTC())
	}
	if req.Start.IsZero() {
		req.Start = req.End.AddDate(0, 0, -uc.opts.LookbackDays)
	}
	return req
}

// Load fetches prices for the request and aligns them into price and return
// tables. Instruments without data are reported in Meta.Skipped.
func (uc *AnalyticsUseCase) Load(ctx context.Context, req Request) (*Dataset, error) {
	defer uc.observe("load", time.Now())
	req = uc.resolve(req)
	if len(req.Symbols) == 0 {
		return nil, &analytics.InsufficientDataError{Reason: "no symbols requested"}
	}

	raw, err := uc.prices.FetchPrices(ctx, req.Symbols, req.Start, req.End)
	if err != nil {
		uc.recordError("prices")
		return nil, &UpstreamError{Source: "prices", Err: err}
	}
	if raw == nil {
		raw = models.RawSeries{}
	}
	// instruments the fetcher silently dropped still need to be reported
	for _, sym := range req.Symbols {
		if _, ok := raw[sym]; !ok {
			raw[sym] = nil
		}
	}

	bounds := models.DateRange{Start: req.Start, End: req.End}
	prices, report, err := analytics.BuildPriceTable(raw, bounds)
	if err != nil {
		uc.recordError("insufficient_data")
		return nil, err
	}
	returns := analytics.ComputeLogReturns(prices)
	for _, s := range report.Skipped {
		uc.log.Debug("instrument skipped", logger.String("symbol", s.Symbol), logger.String("reason", s.Reason))
	}
	return &Dataset{
		Prices:  prices,
		Returns: returns,
		Meta: models.AnalysisMeta{
			Range:        bounds,
			Symbols:      prices.Symbols,
			Skipped:      report.Skipped,
			Observations: returns.Rows(),
		},
	}, nil
}

// Correlation returns the pairwise correlation matrix of log returns.
func (uc *AnalyticsUseCase) Correlation(ctx context.Context, req Request) (models.CorrelationMatrix, models.AnalysisMeta, error) {
	ds, err := uc.Load(ctx, req)
	if err != nil {
		return models.CorrelationMatrix{}, models.AnalysisMeta{}, err
	}
	defer uc.observe("correlation", time.Now())
	corr, err := analytics.CorrelationMatrix(ds.Returns)
	if err != nil {
		uc.recordError("insufficient_data")
		return models.CorrelationMatrix{}, ds.Meta, err
	}
	return corr, ds.Meta, nil
}

// RMT denoises the correlation matrix against the Marchenko-Pastur band.
func (uc *AnalyticsUseCase) RMT(ctx context.Context, req Request) (models.RMTResult, models.AnalysisMeta, error) {
	corr, meta, err := uc.Correlation(ctx, req)
	if err != nil {
		return models.RMTResult{}, meta, err
	}
	defer uc.observe("rmt", time.Now())
	res, err := analytics.DenoiseCorrelation(corr, meta.Observations)
	if err != nil {
		uc.recordError("invalid_dimensions")
		return models.RMTResult{}, meta, err
	}
	return res, meta, nil
}

// Indicators computes momentum, RSI and annualized volatility per instrument.
func (uc *AnalyticsUseCase) Indicators(ctx context.Context, req Request) (map[string]models.IndicatorSet, models.AnalysisMeta, error) {
	ds, err := uc.Load(ctx, req)
	if err != nil {
		return nil, models.AnalysisMeta{}, err
	}
	defer uc.observe("indicators", time.Now())
	return analytics.ComputeIndicators(ds.Prices, ds.Returns, uc.opts.Indicators), ds.Meta, nil
}

// Sentiment returns the mean article score per symbol. Symbols without news
// are absent. It returns an empty map when no news pipeline is wired.
func (uc *AnalyticsUseCase) Sentiment(ctx context.Context, symbols []string) (map[string]float64, error) {
	if uc.news == nil || uc.scorer == nil {
		return map[string]float64{}, nil
	}
	defer uc.observe("sentiment", time.Now())
	articles, err := uc.news.FetchNews(ctx, symbols, uc.opts.NewsLookbackDays)
	if err != nil {
		uc.recordError("news")
		return nil, &UpstreamError{Source: "news", Err: err}
	}
	scores, err := sentiment.SymbolScores(ctx, uc.scorer, articles)
	if err != nil {
		uc.recordError("sentiment")
		return nil, &UpstreamError{Source: "sentiment", Err: err}
	}
	return scores, nil
}

// Predictions labels every instrument. With useSentiment the news signal is
// fetched concurrently with prices; a sentiment failure degrades to zero
// scores, which makes every label Uncertain, and is reported in the error map.
func (uc *AnalyticsUseCase) Predictions(ctx context.Context, req Request, useSentiment bool) ([]models.Prediction, models.AnalysisMeta, map[string]string, error) {
	req = uc.resolve(req)
	useSentiment = useSentiment && uc.news != nil && uc.scorer != nil
	var (
		ds      *Dataset
		scores  map[string]float64
		sentErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds, err = uc.Load(gctx, req)
		return err
	})
	if useSentiment {
		g.Go(func() error {
			scores, sentErr = uc.Sentiment(gctx, req.Symbols)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, models.AnalysisMeta{}, nil, err
	}
	defer uc.observe("predictions", time.Now())

	var errs map[string]string
	if sentErr != nil {
		errs = map[string]string{"sentiment": sentErr.Error()}
	}
	ind := analytics.ComputeIndicators(ds.Prices, ds.Returns, uc.opts.Indicators)
	return analytics.PredictAll(ds.Meta.Symbols, ind, scores, useSentiment), ds.Meta, errs, nil
}

// Spectrum materialises the rolling eigen-spectrum for window W (0 = default).
func (uc *AnalyticsUseCase) Spectrum(ctx context.Context, req Request, window int) (models.SpectrumSeries, models.AnalysisMeta, error) {
	ds, err := uc.Load(ctx, req)
	if err != nil {
		return models.SpectrumSeries{}, models.AnalysisMeta{}, err
	}
	defer uc.observe("spectrum", time.Now())
	return uc.spectrum(ds, window), ds.Meta, nil
}

func (uc *AnalyticsUseCase) spectrum(ds *Dataset, window int) models.SpectrumSeries {
	if window <= 1 {
		window = uc.opts.RollingWindow
	}
	seq, band := analytics.RollingSpectrum(ds.Returns, window)
	points := make([]models.SpectrumPoint, 0, max(ds.Returns.Rows()-window, 0))
	for p := range seq {
		points = append(points, p)
	}
	return models.SpectrumSeries{Window: window, Band: band, Points: points}
}

// Forecast fits the hybrid mean/volatility model for one symbol. A zero
// order uses the configured default.
func (uc *AnalyticsUseCase) Forecast(ctx context.Context, symbol string, req Request, order [3]int) (models.HybridForecast, error) {
	syms := util.NormalizeSymbols([]string{symbol})
	if len(syms) == 0 {
		return models.HybridForecast{}, fmt.Errorf("forecast: %w", ErrUnknownSymbol)
	}
	symbol = syms[0]
	req.Symbols = syms[:1]
	ds, err := uc.Load(ctx, req)
	if err != nil {
		return models.HybridForecast{}, err
	}
	col, ok := ds.Returns.Column(symbol)
	if !ok {
		return models.HybridForecast{}, fmt.Errorf("forecast %s: %w", symbol, ErrUnknownSymbol)
	}
	return uc.forecast(ctx, symbol, col, order)
}

func (uc *AnalyticsUseCase) forecast(ctx context.Context, symbol string, returns []float64, order [3]int) (models.HybridForecast, error) {
	defer uc.observe("forecast", time.Now())
	if order == ([3]int{}) {
		order = uc.opts.ForecastOrder
	}
	fc, err := uc.forecaster.Forecast(ctx, symbol, returns, order)
	if err != nil {
		var he *analytics.InsufficientHistoryError
		if errors.As(err, &he) {
			uc.recordError("insufficient_history")
		} else {
			uc.recordError("external_fit")
		}
		return models.HybridForecast{}, err
	}
	return fc, nil
}

// Historical returns the close history of one symbol over a chart period
// ("1y" when empty). It does not need the symbol to be in the universe.
func (uc *AnalyticsUseCase) Historical(ctx context.Context, symbol, period string) (models.PriceHistory, error) {
	defer uc.observe("historical", time.Now())
	syms := util.NormalizeSymbols([]string{symbol})
	if len(syms) == 0 {
		return models.PriceHistory{}, fmt.Errorf("historical: %w", ErrUnknownSymbol)
	}
	symbol = syms[0]
	if period == "" {
		period = defaultHistoryPeriod
	}
	end := util.TruncateDay(uc.now().UTC())
	start, err := analytics.PeriodStart(end, period)
	if err != nil {
		return models.PriceHistory{}, err
	}

	raw, err := uc.prices.FetchPrices(ctx, []string{symbol}, start, end)
	if err != nil {
		uc.recordError("prices")
		return models.PriceHistory{}, &UpstreamError{Source: "prices", Err: err}
	}
	bounds := models.DateRange{Start: start, End: end}
	points := make([]models.PricePoint, 0, len(raw[symbol]))
	for _, p := range raw[symbol] {
		if bounds.Contains(p.Date) && p.Close > 0 && !math.IsInf(p.Close, 0) {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return models.PriceHistory{}, fmt.Errorf("historical %s: %w", symbol, ErrNoPriceData)
	}
	slices.SortStableFunc(points, func(a, b models.PricePoint) int { return a.Date.Compare(b.Date) })
	return models.PriceHistory{Symbol: symbol, Period: period, Range: bounds, Points: points}, nil
}

// Stats compares every instrument's last two closes. Without an explicit
// start only the last two weeks are loaded.
func (uc *AnalyticsUseCase) Stats(ctx context.Context, req Request) (models.MarketStats, models.AnalysisMeta, error) {
	if req.Start.IsZero() {
		end := req.End
		if end.IsZero() {
			end = util.TruncateDay(uc.now().UTC())
		}
		req.End = end
		req.Start = end.AddDate(0, 0, -statsLookbackDays)
	}
	ds, err := uc.Load(ctx, req)
	if err != nil {
		return models.MarketStats{}, models.AnalysisMeta{}, err
	}
	defer uc.observe("stats", time.Now())
	changes := analytics.LatestChanges(ds.Prices)
	if len(changes) == 0 {
		return models.MarketStats{}, ds.Meta, &analytics.InsufficientDataError{Reason: "no instrument has two closes"}
	}
	return analytics.SummarizeChanges(changes), ds.Meta, nil
}

// Snapshot runs every analysis over the request universe. Only a failure to
// obtain any prices is fatal; other failures are recorded in Errors and the
// affected section is left out.
func (uc *AnalyticsUseCase) Snapshot(ctx context.Context, req Request) (*models.Snapshot, error) {
	start := time.Now()
	defer uc.observe("snapshot", start)
	ctx, cancel := context.WithTimeout(ctx, uc.opts.Timeout)
	defer cancel()

	req = uc.resolve(req)
	snap := &models.Snapshot{GeneratedAt: uc.now().UTC(), Errors: map[string]string{}}

	var (
		ds      *Dataset
		scores  map[string]float64
		sentErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds, err = uc.Load(gctx, req)
		return err
	})
	g.Go(func() error {
		scores, sentErr = uc.Sentiment(gctx, req.Symbols)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Range = ds.Meta.Range
	snap.Symbols = ds.Meta.Symbols
	snap.Skipped = ds.Meta.Skipped
	snap.Observations = ds.Meta.Observations
	if sentErr != nil {
		snap.Errors["sentiment"] = sentErr.Error()
		scores = map[string]float64{}
	}
	snap.Sentiment = scores

	if corr, err := analytics.CorrelationMatrix(ds.Returns); err != nil {
		snap.Errors["correlation"] = err.Error()
	} else {
		snap.Correlation = &corr
		adjusted := analytics.AdjustCorrelation(corr, scores, uc.opts.SentimentAlpha)
		snap.Adjusted = &adjusted
		if res, err := analytics.DenoiseCorrelation(corr, ds.Meta.Observations); err != nil {
			snap.Errors["rmt"] = err.Error()
		} else {
			snap.RMT = &res
			if n := len(res.Eigenvalues); n > 0 {
				uc.metrics.RecordSpectrum(res.Eigenvalues[n-1], res.NoiseCount)
			}
		}
	}

	snap.Indicators = analytics.ComputeIndicators(ds.Prices, ds.Returns, uc.opts.Indicators)
	snap.Predictions = analytics.PredictAll(ds.Meta.Symbols, snap.Indicators, scores, uc.opts.UseSentiment)
	spec := uc.spectrum(ds, 0)
	snap.Spectrum = &spec

	snap.Forecasts = uc.forecastAll(ctx, ds, snap.Errors)
	insights := analytics.Insights(snap.RMT, snap.Correlation, scores, snap.Indicators)
	snap.Insights = &insights

	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}
	uc.log.Info("snapshot computed",
		logger.Int("symbols", len(snap.Symbols)),
		logger.Int("observations", snap.Observations),
		logger.Int("errors", len(snap.Errors)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return snap, nil
}

func (uc *AnalyticsUseCase) forecastAll(ctx context.Context, ds *Dataset, errs map[string]string) map[string]models.HybridForecast {
	if uc.forecaster == nil {
		return nil
	}
	var mu sync.Mutex
	out := make(map[string]models.HybridForecast, len(ds.Meta.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentForecasts)
	for j, sym := range ds.Returns.Symbols {
		g.Go(func() error {
			fc, err := uc.forecast(gctx, sym, ds.Returns.Cols[j], [3]int{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs["forecast:"+sym] = err.Error()
				return nil
			}
			out[sym] = fc
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (uc *AnalyticsUseCase) observe(op string, start time.Time) {
	uc.metrics.RecordLatency(op, time.Since(start))
}

func (uc *AnalyticsUseCase) recordError(kind string) {
	uc.metrics.RecordError(kind)
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, time.Duration) {}
func (nopMetrics) RecordError(string)                  {}
func (nopMetrics) RecordSpectrum(float64, int)         {}
func (nopMetrics) RecordRefresh(time.Time, int, error) {}
