package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/repository"
	"QuantLens/internal/service/modelsvc"
	"QuantLens/internal/service/sentiment"
	"QuantLens/internal/services/analytics"
	"QuantLens/pkg/cache"
	"QuantLens/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 28, 15, 0, 0, 0, time.UTC)

type walkPrices struct {
	days  int
	drift map[string]float64
	skip  map[string]bool
	err   error
	calls int
	mu    sync.Mutex
}

func (w *walkPrices) FetchPrices(_ context.Context, symbols []string, _, end time.Time) (models.RawSeries, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	out := models.RawSeries{}
	for i, sym := range symbols {
		if w.skip[sym] {
			continue
		}
		rng := rand.New(rand.NewPCG(uint64(i+1), 7))
		p := 100.0
		start := end.AddDate(0, 0, -w.days)
		for d := 0; d < w.days; d++ {
			p *= math.Exp(w.drift[sym] + 0.01*rng.NormFloat64())
			out[sym] = append(out[sym], models.PricePoint{Date: start.AddDate(0, 0, d), Close: p})
		}
	}
	return out, nil
}

type fixedNews struct {
	titles map[string][]string
	err    error
}

func (f fixedNews) FetchNews(_ context.Context, symbols []string, _ int) (map[string][]models.NewsArticle, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]models.NewsArticle{}
	for _, s := range symbols {
		for _, t := range f.titles[s] {
			out[s] = append(out[s], models.NewsArticle{Title: t})
		}
	}
	return out, nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	ops       map[string]int
	errs      map[string]int
	lambdaMax float64
	refreshes []error
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int{}, errs: map[string]int{}}
}

func (m *recordingMetrics) RecordLatency(op string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind]++
}

func (m *recordingMetrics) RecordSpectrum(lambdaMax float64, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lambdaMax = lambdaMax
}

func (m *recordingMetrics) RecordRefresh(_ time.Time, _ int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, err)
}

func testOptions(symbols ...string) Options {
	return Options{
		Symbols:          symbols,
		LookbackDays:     200,
		Indicators:       analytics.DefaultIndicatorOptions(),
		RollingWindow:    30,
		SentimentAlpha:   analytics.DefaultSentimentAlpha,
		UseSentiment:     true,
		ForecastOrder:    [3]int{1, 0, 0},
		NewsLookbackDays: 7,
		Timeout:          10 * time.Second,
	}
}

func newTestUseCase(prices *walkPrices, news *fixedNews, m *recordingMetrics, symbols ...string) *AnalyticsUseCase {
	fc := analytics.NewHybridForecaster(modelsvc.ARFitter{}, modelsvc.EWMAFitter{})
	var metrics domrepo.Metrics
	if m != nil {
		metrics = m
	}
	var uc *AnalyticsUseCase
	if news != nil {
		uc = NewAnalyticsUseCase(prices, news, sentiment.NewLexiconScorer(), fc, metrics, testOptions(symbols...), logger.Nop())
	} else {
		uc = NewAnalyticsUseCase(prices, nil, nil, fc, metrics, testOptions(symbols...), logger.Nop())
	}
	uc.now = func() time.Time { return testNow }
	return uc
}

func TestSnapshotComputesAllSections(t *testing.T) {
	m := newRecordingMetrics()
	news := &fixedNews{titles: map[string][]string{
		"AAPL": {"Apple beats estimates, shares surge", "Apple record profit"},
		"MSFT": {"Microsoft shares fall after downgrade"},
	}}
	uc := newTestUseCase(&walkPrices{days: 150}, news, m, "AAPL", "MSFT", "SPY")

	snap, err := uc.Snapshot(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, testNow, snap.GeneratedAt)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, snap.Symbols)
	assert.Equal(t, 149, snap.Observations)
	assert.Nil(t, snap.Errors)

	require.NotNil(t, snap.Correlation)
	for i := range snap.Symbols {
		assert.Equal(t, 1.0, snap.Correlation.Values[i][i])
	}
	require.NotNil(t, snap.RMT)
	assert.Len(t, snap.RMT.Eigenvalues, 3)
	require.NotNil(t, snap.Adjusted)

	assert.Equal(t, 1.0, snap.Sentiment["AAPL"])
	assert.Equal(t, -1.0, snap.Sentiment["MSFT"])
	_, ok := snap.Sentiment["SPY"]
	assert.False(t, ok)

	assert.Len(t, snap.Indicators, 3)
	require.Len(t, snap.Predictions, 3)
	for _, p := range snap.Predictions {
		if p.Symbol == "SPY" {
			assert.Equal(t, models.Uncertain, p.Label, "no news means zero sentiment")
		}
	}

	require.NotNil(t, snap.Spectrum)
	assert.Equal(t, 30, snap.Spectrum.Window)
	assert.Len(t, snap.Spectrum.Points, 149-30)

	assert.Len(t, snap.Forecasts, 3)
	assert.Equal(t, 149, snap.Forecasts["AAPL"].Observations)

	require.NotNil(t, snap.Insights)
	assert.Equal(t, models.SentimentNeutral, snap.Insights.Sentiment, "+1 and -1 average out")
	assert.NotEmpty(t, snap.Insights.Regime)

	assert.Greater(t, m.lambdaMax, 0.0)
	assert.Equal(t, 1, m.ops["snapshot"])
	assert.Equal(t, 3, m.ops["forecast"])
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	fc := analytics.NewHybridForecaster(modelsvc.ARFitter{}, modelsvc.EWMAFitter{})
	uc := NewAnalyticsUseCase(&walkPrices{days: 60}, nil, nil, fc, nil, testOptions("AAPL", "MSFT"), nil)

	assert.NotPanics(t, func() {
		_, _, err := uc.Correlation(context.Background(), Request{})
		assert.NoError(t, err)
		_, err = uc.Snapshot(context.Background(), Request{})
		assert.NoError(t, err)
	})

	r, err := NewSnapshotRefresher(uc, newStore(), nil, nil, "@every 1h", time.Minute, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		_, err := r.Refresh(context.Background())
		assert.NoError(t, err)
	})
}

func TestSnapshotReportsSkippedInstrument(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60, skip: map[string]bool{"MSFT": true}}, nil, nil, "AAPL", "MSFT", "SPY")

	snap, err := uc.Snapshot(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "SPY"}, snap.Symbols)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, "MSFT", snap.Skipped[0].Symbol)
	assert.Len(t, snap.Correlation.Symbols, 2)
}

func TestSnapshotPriceFailureIsFatal(t *testing.T) {
	m := newRecordingMetrics()
	uc := newTestUseCase(&walkPrices{err: errors.New("yahoo down")}, nil, m, "AAPL", "MSFT")

	_, err := uc.Snapshot(context.Background(), Request{})
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "prices", ue.Source)
	assert.Equal(t, 1, m.errs["prices"])
}

func TestSnapshotNewsFailureDegrades(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60}, &fixedNews{err: errors.New("rate limited")}, nil, "AAPL", "MSFT")

	snap, err := uc.Snapshot(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, snap.Errors["sentiment"], "rate limited")
	assert.Empty(t, snap.Sentiment)
	for _, p := range snap.Predictions {
		assert.Equal(t, models.Uncertain, p.Label)
	}
	assert.NotNil(t, snap.Correlation)
}

func TestSnapshotShortHistory(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 15}, nil, nil, "AAPL", "MSFT")

	snap, err := uc.Snapshot(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, snap.Errors, "forecast:AAPL")
	assert.Contains(t, snap.Errors, "forecast:MSFT")
	assert.Empty(t, snap.Forecasts)
	assert.Empty(t, snap.Spectrum.Points)
	assert.NotNil(t, snap.RMT)
}

func TestCorrelationNeedsTwoInstruments(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60}, nil, nil, "AAPL")

	_, _, err := uc.Correlation(context.Background(), Request{})
	var ide *analytics.InsufficientDataError
	assert.ErrorAs(t, err, &ide)
}

func TestRequestOverridesDefaults(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60}, nil, nil, "AAPL", "MSFT")

	_, meta, err := uc.Indicators(context.Background(), Request{Symbols: []string{" spy ", "qqq,SPY"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"QQQ", "SPY"}, meta.Symbols)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), meta.Range.End)
	assert.Equal(t, meta.Range.End.AddDate(0, 0, -200), meta.Range.Start)
}

func TestPredictionsFollowRules(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60, drift: map[string]float64{"AAPL": 0.004, "MSFT": -0.004}}, nil, nil, "AAPL", "MSFT")

	preds, _, errs, err := uc.Predictions(context.Background(), Request{}, false)
	require.NoError(t, err)
	assert.Nil(t, errs)
	require.Len(t, preds, 2)
	for _, p := range preds {
		assert.Equal(t, analytics.Predict(p.Indicators.Momentum, p.Indicators.RSI, p.Sentiment, false), p.Label)
	}
}

func TestForecast(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 80}, nil, nil, "AAPL", "MSFT")

	fc, err := uc.Forecast(context.Background(), "aapl", Request{}, [3]int{})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", fc.Symbol)
	assert.Equal(t, 79, fc.Observations)
	assert.Greater(t, fc.Volatility, 0.0)
	assert.InDelta(t, fc.Mean-1.96*fc.Volatility, fc.Lower, 1e-9)

	_, err = uc.Forecast(context.Background(), " ", Request{}, [3]int{})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestSpectrumWindowOverride(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60}, nil, nil, "AAPL", "MSFT", "SPY")

	series, _, err := uc.Spectrum(context.Background(), Request{}, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, series.Window)
	assert.Len(t, series.Points, 59-20)
	for _, p := range series.Points {
		assert.GreaterOrEqual(t, p.Lambda1, p.Lambda2)
	}
}

func TestHistorical(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60, skip: map[string]bool{"ZZZZ": true}}, nil, nil, "AAPL", "MSFT")

	hist, err := uc.Historical(context.Background(), " nvda ", "1mo")
	require.NoError(t, err)
	assert.Equal(t, "NVDA", hist.Symbol)
	assert.Equal(t, "1mo", hist.Period)
	assert.Len(t, hist.Points, 31)
	assert.Equal(t, time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC), hist.Range.Start)
	for i := 1; i < len(hist.Points); i++ {
		assert.True(t, hist.Points[i].Date.After(hist.Points[i-1].Date))
	}

	hist, err = uc.Historical(context.Background(), "AAPL", "")
	require.NoError(t, err)
	assert.Equal(t, "1y", hist.Period)
	assert.Len(t, hist.Points, 60)

	_, err = uc.Historical(context.Background(), "ZZZZ", "5d")
	assert.ErrorIs(t, err, ErrNoPriceData)

	_, err = uc.Historical(context.Background(), "AAPL", "7w")
	assert.Error(t, err)
}

func TestHistoricalUpstreamFailure(t *testing.T) {
	uc := newTestUseCase(&walkPrices{err: errors.New("yahoo down")}, nil, nil, "AAPL", "MSFT")
	_, err := uc.Historical(context.Background(), "AAPL", "1y")
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)
}

func TestStats(t *testing.T) {
	uc := newTestUseCase(&walkPrices{days: 60, drift: map[string]float64{"AAPL": 0.05, "MSFT": -0.05}}, nil, nil, "AAPL", "MSFT")

	stats, meta, err := uc.Stats(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), meta.Range.Start)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Gainers)
	assert.Equal(t, 1, stats.Losers)
	assert.Equal(t, "AAPL", stats.TopGainer.Symbol)
	assert.Equal(t, "MSFT", stats.TopLoser.Symbol)
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, s *models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newStore() domrepo.SnapshotStore {
	return repository.NewCacheSnapshotStore(cache.NewMemoryCache(cache.WithMemoryCleanup(0)), 0)
}

func TestRefresherRefresh(t *testing.T) {
	m := newRecordingMetrics()
	uc := newTestUseCase(&walkPrices{days: 60}, nil, nil, "AAPL", "MSFT")
	store := newStore()
	pub := &recordingPublisher{err: errors.New("kafka down")}

	r, err := NewSnapshotRefresher(uc, store, pub, m, "@every 15m", time.Minute, logger.Nop())
	require.NoError(t, err)

	_, err = r.Latest(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrSnapshotNotFound)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err, "publish failures are logged only")
	assert.Len(t, pub.snaps, 1)

	latest, err := r.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Symbols, latest.Symbols)
	assert.Equal(t, []error{nil}, m.refreshes)

	ok, err := store.TryLock(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released after refresh")
}

func TestRefresherRespectsLock(t *testing.T) {
	store := newStore()
	uc := newTestUseCase(&walkPrices{days: 60}, nil, nil, "AAPL", "MSFT")
	r, err := NewSnapshotRefresher(uc, store, nil, nil, "*/5 * * * *", time.Minute, logger.Nop())
	require.NoError(t, err)

	ok, _ := store.TryLock(context.Background(), time.Minute)
	require.True(t, ok)
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

func TestRefresherBadSchedule(t *testing.T) {
	_, err := NewSnapshotRefresher(nil, newStore(), nil, nil, "every now and then", time.Minute, nil)
	assert.Error(t, err)
}

func TestRefresherStartStop(t *testing.T) {
	prices := &walkPrices{days: 60}
	uc := newTestUseCase(prices, nil, nil, "AAPL", "MSFT")
	store := newStore()
	r, err := NewSnapshotRefresher(uc, store, nil, nil, "@every 1h", time.Minute, logger.Nop())
	require.NoError(t, err)

	r.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	_, err = store.Latest(context.Background())
	assert.NoError(t, err, "initial refresh runs on start")
	assert.Equal(t, 1, prices.calls)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Hour), r.Next(start))
}

type blockingSnapshotter struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSnapshotter) Snapshot(ctx context.Context, _ Request) (*models.Snapshot, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &models.Snapshot{Symbols: []string{"AAPL"}}, nil
}

func TestTriggerAsyncClaimsOnce(t *testing.T) {
	snapper := &blockingSnapshotter{release: make(chan struct{})}
	r, err := NewSnapshotRefresher(snapper, newStore(), nil, nil, "@every 1h", time.Minute, logger.Nop())
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TriggerAsync(context.Background()) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())

	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(snapper.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.Equal(t, int32(1), snapper.calls.Load())

	_, err = r.Latest(context.Background())
	assert.NoError(t, err)
	assert.True(t, r.TriggerAsync(context.Background()), "flag released after the refresh")
	require.NoError(t, r.Stop(ctx))
}
