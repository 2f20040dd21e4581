package modelsvc

import (
	"context"
	"fmt"

	"QuantLens/internal/domain/service"
)

// forecastHorizon is how many steps the remote fitters precompute.
const forecastHorizon = 5

type meanFitRequest struct {
	Series  []float64 `json:"series"`
	Order   [3]int    `json:"order"`
	Horizon int       `json:"horizon"`
}

type meanFitResponse struct {
	Forecast []float64 `json:"forecast"`
	Summary  string    `json:"summary"`
}

type volFitRequest struct {
	Series  []float64 `json:"series"`
	Horizon int       `json:"horizon"`
}

type volFitResponse struct {
	ConditionalVolatility []float64 `json:"conditional_volatility"`
	VarianceForecast      []float64 `json:"variance_forecast"`
}

// HTTPMeanFitter fits ARIMA mean models on the model service.
type HTTPMeanFitter struct{ base *HTTPServiceBase }

func NewHTTPMeanFitter(base *HTTPServiceBase) *HTTPMeanFitter {
	return &HTTPMeanFitter{base: base}
}

func (f *HTTPMeanFitter) FitMean(ctx context.Context, series []float64, order [3]int) (service.MeanModel, error) {
	var resp meanFitResponse
	req := meanFitRequest{Series: series, Order: order, Horizon: forecastHorizon}
	if err := f.base.PostJSONWithRetry(ctx, "/v1/fit/mean", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Forecast) == 0 {
		return nil, fmt.Errorf("mean fit returned no forecast")
	}
	return &remoteMeanModel{forecast: resp.Forecast, summary: resp.Summary}, nil
}

// HTTPVolatilityFitter fits GARCH-style models on the model service.
type HTTPVolatilityFitter struct{ base *HTTPServiceBase }

func NewHTTPVolatilityFitter(base *HTTPServiceBase) *HTTPVolatilityFitter {
	return &HTTPVolatilityFitter{base: base}
}

func (f *HTTPVolatilityFitter) FitVolatility(ctx context.Context, seriesPct []float64) (service.VolatilityModel, error) {
	var resp volFitResponse
	req := volFitRequest{Series: seriesPct, Horizon: forecastHorizon}
	if err := f.base.PostJSONWithRetry(ctx, "/v1/fit/volatility", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.VarianceForecast) == 0 {
		return nil, fmt.Errorf("volatility fit returned no variance forecast")
	}
	return &remoteVolModel{cond: resp.ConditionalVolatility, variance: resp.VarianceForecast}, nil
}

type remoteMeanModel struct {
	forecast []float64
	summary  string
}

func (m *remoteMeanModel) Forecast(h int) (float64, error) {
	if h < 1 || h > len(m.forecast) {
		return 0, fmt.Errorf("horizon %d outside fitted range 1..%d", h, len(m.forecast))
	}
	return m.forecast[h-1], nil
}

func (m *remoteMeanModel) Summary() string { return m.summary }

type remoteVolModel struct {
	cond     []float64
	variance []float64
}

func (m *remoteVolModel) ConditionalVolatility() []float64 { return m.cond }

func (m *remoteVolModel) ForecastVariance(h int) (float64, error) {
	if h < 1 || h > len(m.variance) {
		return 0, fmt.Errorf("horizon %d outside fitted range 1..%d", h, len(m.variance))
	}
	return m.variance[h-1], nil
}

var (
	_ service.MeanModelFitter       = (*HTTPMeanFitter)(nil)
	_ service.VolatilityModelFitter = (*HTTPVolatilityFitter)(nil)
)
