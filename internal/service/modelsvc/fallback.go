package modelsvc

import (
	"context"

	"QuantLens/internal/domain/service"
	"QuantLens/pkg/logger"
)

// FallbackMeanFitter uses the remote fitter and falls back to a local one on error.
type FallbackMeanFitter struct {
	Primary  service.MeanModelFitter
	Fallback service.MeanModelFitter
	Log      *logger.Logger
}

func (f *FallbackMeanFitter) FitMean(ctx context.Context, series []float64, order [3]int) (service.MeanModel, error) {
	m, err := f.Primary.FitMean(ctx, series, order)
	if err == nil || ctx.Err() != nil {
		return m, err
	}
	f.Log.Warn("remote mean fit failed, using local model", logger.Error(err))
	return f.Fallback.FitMean(ctx, series, order)
}

// FallbackVolatilityFitter uses the remote fitter and falls back to a local one on error.
type FallbackVolatilityFitter struct {
	Primary  service.VolatilityModelFitter
	Fallback service.VolatilityModelFitter
	Log      *logger.Logger
}

func (f *FallbackVolatilityFitter) FitVolatility(ctx context.Context, seriesPct []float64) (service.VolatilityModel, error) {
	m, err := f.Primary.FitVolatility(ctx, seriesPct)
	if err == nil || ctx.Err() != nil {
		return m, err
	}
	f.Log.Warn("remote volatility fit failed, using local model", logger.Error(err))
	return f.Fallback.FitVolatility(ctx, seriesPct)
}
