package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/services/analytics"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalytics struct {
	opts    usecase.Options
	err     error
	lastReq usecase.Request
	lastUse bool
	lastWin int
	lastSym string
	lastOrd [3]int
	lastPer string
}

func (f *fakeAnalytics) Options() usecase.Options { return f.opts }

func (f *fakeAnalytics) meta() models.AnalysisMeta {
	return models.AnalysisMeta{Symbols: []string{"AAPL", "MSFT"}, Observations: 10}
}

func (f *fakeAnalytics) Correlation(_ context.Context, req usecase.Request) (models.CorrelationMatrix, models.AnalysisMeta, error) {
	f.lastReq = req
	if f.err != nil {
		return models.CorrelationMatrix{}, models.AnalysisMeta{}, f.err
	}
	return models.CorrelationMatrix{Symbols: []string{"AAPL", "MSFT"}, Values: [][]float64{{1, 0.5}, {0.5, 1}}}, f.meta(), nil
}

func (f *fakeAnalytics) RMT(_ context.Context, req usecase.Request) (models.RMTResult, models.AnalysisMeta, error) {
	f.lastReq = req
	return models.RMTResult{Eigenvalues: []float64{0.5, 1.5}, NoiseCount: 1}, f.meta(), f.err
}

func (f *fakeAnalytics) Indicators(_ context.Context, req usecase.Request) (map[string]models.IndicatorSet, models.AnalysisMeta, error) {
	f.lastReq = req
	return map[string]models.IndicatorSet{"AAPL": {Momentum: 0.1, RSI: 55, Volatility: 0.2}}, f.meta(), f.err
}

func (f *fakeAnalytics) Predictions(_ context.Context, req usecase.Request, use bool) ([]models.Prediction, models.AnalysisMeta, map[string]string, error) {
	f.lastReq, f.lastUse = req, use
	return []models.Prediction{{Symbol: "AAPL", Label: models.LikelyUp}}, f.meta(), nil, f.err
}

func (f *fakeAnalytics) Spectrum(_ context.Context, req usecase.Request, window int) (models.SpectrumSeries, models.AnalysisMeta, error) {
	f.lastReq, f.lastWin = req, window
	return models.SpectrumSeries{Window: window}, f.meta(), f.err
}

func (f *fakeAnalytics) Forecast(_ context.Context, symbol string, req usecase.Request, order [3]int) (models.HybridForecast, error) {
	f.lastSym, f.lastReq, f.lastOrd = symbol, req, order
	if f.err != nil {
		return models.HybridForecast{}, f.err
	}
	return models.HybridForecast{Symbol: symbol, Mean: 0.1, Volatility: 1.2, Observations: 40}, nil
}

func (f *fakeAnalytics) Historical(_ context.Context, symbol, period string) (models.PriceHistory, error) {
	f.lastSym, f.lastPer = symbol, period
	if f.err != nil {
		return models.PriceHistory{}, f.err
	}
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return models.PriceHistory{
		Symbol: symbol,
		Period: period,
		Points: []models.PricePoint{{Date: day, Close: 100}, {Date: day.AddDate(0, 0, 1), Close: 101}},
	}, nil
}

func (f *fakeAnalytics) Stats(_ context.Context, req usecase.Request) (models.MarketStats, models.AnalysisMeta, error) {
	f.lastReq = req
	if f.err != nil {
		return models.MarketStats{}, models.AnalysisMeta{}, f.err
	}
	changes := []models.InstrumentChange{
		{Symbol: "AAPL", Change: 2, ChangePercent: 1.1},
		{Symbol: "MSFT", Change: -3, ChangePercent: -0.8},
	}
	return analytics.SummarizeChanges(changes), f.meta(), nil
}

type fakeSnapshots struct {
	snap    *models.Snapshot
	trigger bool
}

func (f *fakeSnapshots) Latest(context.Context) (*models.Snapshot, error) {
	if f.snap == nil {
		return nil, domrepo.ErrSnapshotNotFound
	}
	return f.snap, nil
}

func (f *fakeSnapshots) TriggerAsync(context.Context) bool { return f.trigger }

func newTestServer(a *fakeAnalytics, s *fakeSnapshots) *echo.Echo {
	e := echo.New()
	NewAnalyticsHandler(xlogger.Nop(), a, s).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestCorrelation_BindsQuery(t *testing.T) {
	a := &fakeAnalytics{}
	e := newTestServer(a, &fakeSnapshots{})

	rec, body := do(t, e, http.MethodGet, "/api/correlation?symbols=AAPL&symbols=MSFT&start=2024-01-02&end=2024-03-01")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.lastReq.Symbols)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), a.lastReq.Start.UTC())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), a.lastReq.End.UTC())

	data := body["data"].(map[string]interface{})
	assert.Contains(t, data, "meta")
	assert.Contains(t, data, "matrix")
}

func TestCorrelation_InvalidDate(t *testing.T) {
	e := newTestServer(&fakeAnalytics{}, &fakeSnapshots{})
	rec, _ := do(t, e, http.MethodGet, "/api/correlation?start=02-01-2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrelation_DomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&analytics.InsufficientDataError{Reason: "need 2"}, http.StatusUnprocessableEntity, xhttp.CodeInsufficientData},
		{&analytics.InvalidDimensionsError{T: 0, N: 2}, http.StatusBadRequest, xhttp.CodeInvalidDimensions},
		{&usecase.UpstreamError{Source: "prices", Err: errors.New("boom")}, http.StatusBadGateway, xhttp.CodeUpstream},
		{fmt.Errorf("load: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, xhttp.CodeUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError, xhttp.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			e := newTestServer(&fakeAnalytics{err: tc.err}, &fakeSnapshots{})
			rec, body := do(t, e, http.MethodGet, "/api/correlation")
			assert.Equal(t, tc.status, rec.Code)
			errs := body["data"].([]interface{})
			require.Len(t, errs, 1)
			assert.Equal(t, tc.code, errs[0].(map[string]interface{})["code"])
		})
	}
}

func TestPredictions_SentimentToggle(t *testing.T) {
	a := &fakeAnalytics{opts: usecase.Options{UseSentiment: true}}
	e := newTestServer(a, &fakeSnapshots{})

	rec, body := do(t, e, http.MethodGet, "/api/predictions")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, a.lastUse)
	assert.Equal(t, true, body["data"].(map[string]interface{})["use_sentiment"])

	rec, _ = do(t, e, http.MethodGet, "/api/predictions?use_sentiment=false")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, a.lastUse)
}

func TestSpectrum_Window(t *testing.T) {
	a := &fakeAnalytics{}
	e := newTestServer(a, &fakeSnapshots{})

	rec, _ := do(t, e, http.MethodGet, "/api/spectrum?window=20")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, a.lastWin)

	rec, _ = do(t, e, http.MethodGet, "/api/spectrum?window=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecast(t *testing.T) {
	a := &fakeAnalytics{}
	e := newTestServer(a, &fakeSnapshots{})

	rec, body := do(t, e, http.MethodGet, "/api/forecast/AAPL?order=2,0,1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", a.lastSym)
	assert.Equal(t, [3]int{2, 0, 1}, a.lastOrd)
	assert.Equal(t, "AAPL", body["data"].(map[string]interface{})["symbol"])

	rec, _ = do(t, e, http.MethodGet, "/api/forecast/AAPL?order=2,x,1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecast_Errors(t *testing.T) {
	e := newTestServer(&fakeAnalytics{err: &analytics.InsufficientHistoryError{Symbol: "AAPL", Have: 5, Need: 20}}, &fakeSnapshots{})
	rec, body := do(t, e, http.MethodGet, "/api/forecast/AAPL")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	params := body["data"].([]interface{})[0].(map[string]interface{})["params"].(map[string]interface{})
	assert.EqualValues(t, 5, params["have"])
	assert.EqualValues(t, 20, params["need"])

	e = newTestServer(&fakeAnalytics{err: &analytics.ExternalFitError{Stage: analytics.StageVolatility, Symbol: "AAPL", Err: errors.New("x")}}, &fakeSnapshots{})
	rec, _ = do(t, e, http.MethodGet, "/api/forecast/AAPL")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	e = newTestServer(&fakeAnalytics{err: usecase.ErrUnknownSymbol}, &fakeSnapshots{})
	rec, _ = do(t, e, http.MethodGet, "/api/forecast/%20")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotAndRefresh(t *testing.T) {
	snaps := &fakeSnapshots{}
	e := newTestServer(&fakeAnalytics{}, snaps)

	rec, _ := do(t, e, http.MethodGet, "/api/snapshot")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)

	snaps.trigger = true
	rec, _ = do(t, e, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	snaps.snap = &models.Snapshot{GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Symbols: []string{"AAPL"}}
	rec, body := do(t, e, http.MethodGet, "/api/snapshot")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-05-01T12:00:00Z", body["data"].(map[string]interface{})["generated_at"])
}

func TestHealth(t *testing.T) {
	snaps := &fakeSnapshots{}
	e := newTestServer(&fakeAnalytics{opts: usecase.Options{Symbols: []string{"AAPL", "MSFT"}}}, snaps)

	rec, body := do(t, e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.NotContains(t, data, "snapshot_at")

	snaps.snap = &models.Snapshot{GeneratedAt: time.Now()}
	_, body = do(t, e, http.MethodGet, "/api/health")
	assert.Contains(t, body["data"].(map[string]interface{}), "snapshot_at")
}

func TestParseOrder(t *testing.T) {
	o, err := parseOrder("")
	require.NoError(t, err)
	assert.Equal(t, [3]int{}, o)

	o, err = parseOrder(" 1, 1 ,0")
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1, 0}, o)

	_, err = parseOrder("1,2")
	assert.Error(t, err)
	_, err = parseOrder("1,2,-1")
	assert.Error(t, err)
}

func TestHistorical(t *testing.T) {
	a := &fakeAnalytics{}
	e := newTestServer(a, &fakeSnapshots{})

	rec, body := do(t, e, http.MethodGet, "/api/historical/AAPL?period=5y")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", a.lastSym)
	assert.Equal(t, "5y", a.lastPer)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["points"], 2)

	_, _ = do(t, e, http.MethodGet, "/api/historical/MSFT")
	assert.Equal(t, "", a.lastPer, "empty period defers to the use case default")
}

func TestHistorical_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"invalid period", "/api/historical/AAPL?period=7y", nil, http.StatusBadRequest},
		{"no data", "/api/historical/ZZZZ", fmt.Errorf("historical ZZZZ: %w", usecase.ErrNoPriceData), http.StatusNotFound},
		{"upstream", "/api/historical/AAPL?period=max", &usecase.UpstreamError{Source: "prices", Err: errors.New("down")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalytics{err: tt.err}
			rec, _ := do(t, newTestServer(a, &fakeSnapshots{}), http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestStats(t *testing.T) {
	a := &fakeAnalytics{}
	e := newTestServer(a, &fakeSnapshots{})

	rec, body := do(t, e, http.MethodGet, "/api/stats?symbols=AAPL,MSFT")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL,MSFT"}, a.lastReq.Symbols)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, 2.0, data["total"])
	assert.Equal(t, 1.0, data["gainers"])
	assert.Equal(t, 1.0, data["losers"])
	assert.Equal(t, "AAPL", data["top_gainer"].(map[string]interface{})["symbol"])
	assert.Equal(t, "MSFT", data["top_loser"].(map[string]interface{})["symbol"])
	assert.Contains(t, data, "meta")

	a.err = &analytics.InsufficientDataError{Reason: "no instrument has two closes"}
	rec, _ = do(t, e, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
