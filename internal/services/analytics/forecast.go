package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
)

const (
	MinForecastObservations = 20
	confidenceZ             = 1.96
)

// DefaultForecastOrder is the ARIMA (p, d, q) used when none is given.
var DefaultForecastOrder = [3]int{1, 0, 1}

// HybridForecaster combines a conditional-mean model fitted on log returns
// with a volatility model fitted on percent returns.
type HybridForecaster struct {
	mean service.MeanModelFitter
	vol  service.VolatilityModelFitter
}

func NewHybridForecaster(mean service.MeanModelFitter, vol service.VolatilityModelFitter) *HybridForecaster {
	return &HybridForecaster{mean: mean, vol: vol}
}

// Forecast produces a one-step-ahead mean and volatility in percent with a
// 95% interval. NaN returns are ignored. The zero order means DefaultForecastOrder.
func (f *HybridForecaster) Forecast(ctx context.Context, symbol string, returns []float64, order [3]int) (models.HybridForecast, error) {
	series := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			series = append(series, r)
		}
	}
	if len(series) < MinForecastObservations {
		return models.HybridForecast{}, &InsufficientHistoryError{Symbol: symbol, Have: len(series), Need: MinForecastObservations}
	}
	if order == ([3]int{}) {
		order = DefaultForecastOrder
	}

	meanModel, err := f.mean.FitMean(ctx, series, order)
	if err != nil {
		return models.HybridForecast{}, &ExternalFitError{Stage: StageMean, Symbol: symbol, Err: err}
	}
	next, err := meanModel.Forecast(1)
	if err != nil {
		return models.HybridForecast{}, &ExternalFitError{Stage: StageMean, Symbol: symbol, Err: err}
	}
	if !isFinite(next) {
		return models.HybridForecast{}, &ExternalFitError{Stage: StageMean, Symbol: symbol, Err: errors.New("non-finite mean forecast")}
	}

	pct := make([]float64, len(series))
	for i, r := range series {
		pct[i] = r * 100
	}
	volModel, err := f.vol.FitVolatility(ctx, pct)
	if err != nil {
		return models.HybridForecast{}, &ExternalFitError{Stage: StageVolatility, Symbol: symbol, Err: err}
	}
	variance, err := volModel.ForecastVariance(1)
	if err != nil {
		return models.HybridForecast{}, &ExternalFitError{Stage: StageVolatility, Symbol: symbol, Err: err}
	}
	if !isFinite(variance) || variance < 0 {
		return models.HybridForecast{}, &ExternalFitError{
			Stage:  StageVolatility,
			Symbol: symbol,
			Err:    fmt.Errorf("invalid variance forecast %v", variance),
		}
	}

	meanPct := next * 100
	volPct := math.Sqrt(variance)
	return models.HybridForecast{
		Symbol:                symbol,
		Mean:                  meanPct,
		Volatility:            volPct,
		Lower:                 meanPct - confidenceZ*volPct,
		Upper:                 meanPct + confidenceZ*volPct,
		MeanSummary:           meanModel.Summary(),
		ConditionalVolatility: append([]float64(nil), volModel.ConditionalVolatility()...),
		Observations:          len(series),
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
