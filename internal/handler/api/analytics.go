package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyticsService is the use case surface the handlers need.
type AnalyticsService interface {
	Options() usecase.Options
	Correlation(ctx context.Context, req usecase.Request) (models.CorrelationMatrix, models.AnalysisMeta, error)
	RMT(ctx context.Context, req usecase.Request) (models.RMTResult, models.AnalysisMeta, error)
	Indicators(ctx context.Context, req usecase.Request) (map[string]models.IndicatorSet, models.AnalysisMeta, error)
	Predictions(ctx context.Context, req usecase.Request, useSentiment bool) ([]models.Prediction, models.AnalysisMeta, map[string]string, error)
	Spectrum(ctx context.Context, req usecase.Request, window int) (models.SpectrumSeries, models.AnalysisMeta, error)
	Forecast(ctx context.Context, symbol string, req usecase.Request, order [3]int) (models.HybridForecast, error)
	Historical(ctx context.Context, symbol, period string) (models.PriceHistory, error)
	Stats(ctx context.Context, req usecase.Request) (models.MarketStats, models.AnalysisMeta, error)
}

// SnapshotService serves and refreshes the cached full snapshot.
type SnapshotService interface {
	Latest(ctx context.Context) (*models.Snapshot, error)
	TriggerAsync(ctx context.Context) bool
}

// AnalyticsHandler exposes the analytics use cases over Echo.
type AnalyticsHandler struct {
	logger    *xlogger.Logger
	analytics AnalyticsService
	snapshots SnapshotService
	started   time.Time
}

func NewAnalyticsHandler(logger *xlogger.Logger, analytics AnalyticsService, snapshots SnapshotService) *AnalyticsHandler {
	return &AnalyticsHandler{logger: logger, analytics: analytics, snapshots: snapshots, started: time.Now()}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/snapshot", h.Snapshot)
	g.POST("/refresh", h.Refresh)
	g.GET("/correlation", h.Correlation)
	g.GET("/rmt", h.RMT)
	g.GET("/indicators", h.Indicators)
	g.GET("/predictions", h.Predictions)
	g.GET("/spectrum", h.Spectrum)
	g.GET("/forecast/:symbol", h.Forecast)
	g.GET("/historical/:symbol", h.Historical)
	g.GET("/stats", h.Stats)
}

type healthResponse struct {
	Status     string     `json:"status"`
	Uptime     string     `json:"uptime"`
	Symbols    []string   `json:"symbols"`
	SnapshotAt *time.Time `json:"snapshot_at,omitempty"`
}

func (h *AnalyticsHandler) Health(c echo.Context) error {
	res := healthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Symbols: h.analytics.Options().Symbols,
	}
	if snap, err := h.snapshots.Latest(c.Request().Context()); err == nil {
		res.SnapshotAt = &snap.GeneratedAt
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) Snapshot(c echo.Context) error {
	snap, err := h.snapshots.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "snapshot", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, snap)
}

func (h *AnalyticsHandler) Refresh(c echo.Context) error {
	if !h.snapshots.TriggerAsync(c.Request().Context()) {
		return h.fail(c, "refresh", usecase.ErrRefreshInProgress)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"status": "refresh started"})
}

type correlationResponse struct {
	Meta   models.AnalysisMeta      `json:"meta"`
	Matrix models.CorrelationMatrix `json:"matrix"`
}

func (h *AnalyticsHandler) Correlation(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m, meta, err := h.analytics.Correlation(c.Request().Context(), toUseCaseRequest(req))
	if err != nil {
		return h.fail(c, "correlation", err)
	}
	return xhttp.SuccessResponse(c, correlationResponse{Meta: meta, Matrix: m})
}

type rmtResponse struct {
	Meta models.AnalysisMeta `json:"meta"`
	models.RMTResult
}

func (h *AnalyticsHandler) RMT(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, meta, err := h.analytics.RMT(c.Request().Context(), toUseCaseRequest(req))
	if err != nil {
		return h.fail(c, "rmt", err)
	}
	return xhttp.SuccessResponse(c, rmtResponse{Meta: meta, RMTResult: res})
}

type indicatorsResponse struct {
	Meta       models.AnalysisMeta            `json:"meta"`
	Indicators map[string]models.IndicatorSet `json:"indicators"`
}

func (h *AnalyticsHandler) Indicators(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ind, meta, err := h.analytics.Indicators(c.Request().Context(), toUseCaseRequest(req))
	if err != nil {
		return h.fail(c, "indicators", err)
	}
	return xhttp.SuccessResponse(c, indicatorsResponse{Meta: meta, Indicators: ind})
}

type predictionsResponse struct {
	Meta         models.AnalysisMeta `json:"meta"`
	UseSentiment bool                `json:"use_sentiment"`
	Predictions  []models.Prediction `json:"predictions"`
	Errors       map[string]string   `json:"errors,omitempty"`
}

func (h *AnalyticsHandler) Predictions(c echo.Context) error {
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	use := h.analytics.Options().UseSentiment
	if req.UseSentiment != "" {
		use, _ = strconv.ParseBool(req.UseSentiment)
	}
	preds, meta, errs, err := h.analytics.Predictions(c.Request().Context(), toUseCaseRequest(&req.AnalysisRequest), use)
	if err != nil {
		return h.fail(c, "predictions", err)
	}
	return xhttp.SuccessResponse(c, predictionsResponse{Meta: meta, UseSentiment: use, Predictions: preds, Errors: errs})
}

type spectrumResponse struct {
	Meta     models.AnalysisMeta   `json:"meta"`
	Spectrum models.SpectrumSeries `json:"spectrum"`
}

func (h *AnalyticsHandler) Spectrum(c echo.Context) error {
	req := &models.SpectrumRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, meta, err := h.analytics.Spectrum(c.Request().Context(), toUseCaseRequest(&req.AnalysisRequest), req.Window)
	if err != nil {
		return h.fail(c, "spectrum", err)
	}
	return xhttp.SuccessResponse(c, spectrumResponse{Meta: meta, Spectrum: series})
}

func (h *AnalyticsHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	order, err := parseOrder(req.Order)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	fc, err := h.analytics.Forecast(c.Request().Context(), req.Symbol, toUseCaseRequest(&req.AnalysisRequest), order)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, fc)
}

func (h *AnalyticsHandler) Historical(c echo.Context) error {
	req := &models.HistoricalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	hist, err := h.analytics.Historical(c.Request().Context(), req.Symbol, req.Period)
	if err != nil {
		return h.fail(c, "historical", err)
	}
	return xhttp.SuccessResponse(c, hist)
}

type statsResponse struct {
	Meta models.AnalysisMeta `json:"meta"`
	models.MarketStats
}

func (h *AnalyticsHandler) Stats(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, meta, err := h.analytics.Stats(c.Request().Context(), toUseCaseRequest(req))
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, statsResponse{Meta: meta, MarketStats: stats})
}

func (h *AnalyticsHandler) fail(c echo.Context, op string, err error) error {
	appErr := FromDomainError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toUseCaseRequest(r *models.AnalysisRequest) usecase.Request {
	return usecase.Request{
		Symbols: r.Symbols,
		Start:   xhttp.ParseTimeDefault(r.Start, time.Time{}),
		End:     xhttp.ParseTimeDefault(r.End, time.Time{}),
	}
}

// parseOrder reads "p,d,q"; the empty string yields the zero order.
func parseOrder(s string) ([3]int, error) {
	var order [3]int
	if strings.TrimSpace(s) == "" {
		return order, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return order, fmt.Errorf("order must be p,d,q")
	}
	for i, p := range parts {
		v := xhttp.ParseIntDefault(strings.TrimSpace(p), -1)
		if v < 0 || v > 10 {
			return order, fmt.Errorf("order component %q must be an integer in [0, 10]", p)
		}
		order[i] = v
	}
	return order, nil
}
