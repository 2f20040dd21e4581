package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"QuantLens/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMean struct {
	forecast float64
	err      error
	order    [3]int
	series   []float64
}

func (f *fakeMean) FitMean(_ context.Context, series []float64, order [3]int) (service.MeanModel, error) {
	f.order, f.series = order, series
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeMean) Forecast(int) (float64, error) { return f.forecast, nil }
func (f *fakeMean) Summary() string               { return "ARMA(1,1)" }

type fakeVol struct {
	variance float64
	err      error
	series   []float64
}

func (f *fakeVol) FitVolatility(_ context.Context, series []float64) (service.VolatilityModel, error) {
	f.series = series
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeVol) ConditionalVolatility() []float64      { return []float64{1.5, 2} }
func (f *fakeVol) ForecastVariance(int) (float64, error) { return f.variance, nil }

func series(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.001 * float64(i%5-2)
	}
	return out
}

func TestHybridForecast(t *testing.T) {
	mean := &fakeMean{forecast: 0.001}
	vol := &fakeVol{variance: 4}
	f := NewHybridForecaster(mean, vol)

	got, err := f.Forecast(context.Background(), "AAPL", series(30), [3]int{})
	require.NoError(t, err)

	assert.Equal(t, DefaultForecastOrder, mean.order)
	assert.InDelta(t, 0.1, got.Mean, 1e-12)
	assert.InDelta(t, 2.0, got.Volatility, 1e-12)
	assert.InDelta(t, 0.1-1.96*2, got.Lower, 1e-12)
	assert.InDelta(t, 0.1+1.96*2, got.Upper, 1e-12)
	assert.Equal(t, "ARMA(1,1)", got.MeanSummary)
	assert.Equal(t, []float64{1.5, 2}, got.ConditionalVolatility)
	assert.Equal(t, 30, got.Observations)
	assert.InDelta(t, mean.series[0]*100, vol.series[0], 1e-12, "volatility is fitted on percent returns")
}

func TestHybridForecastCustomOrder(t *testing.T) {
	mean := &fakeMean{}
	_, err := NewHybridForecaster(mean, &fakeVol{variance: 1}).
		Forecast(context.Background(), "X", series(25), [3]int{2, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 1, 0}, mean.order)
}

func TestHybridForecastInsufficientHistory(t *testing.T) {
	f := NewHybridForecaster(&fakeMean{}, &fakeVol{})

	_, err := f.Forecast(context.Background(), "X", series(19), [3]int{})
	var ihe *InsufficientHistoryError
	require.True(t, errors.As(err, &ihe))
	assert.Equal(t, 19, ihe.Have)

	withGaps := series(25)
	for i := 0; i < 6; i++ {
		withGaps[i] = math.NaN()
	}
	_, err = f.Forecast(context.Background(), "X", withGaps, [3]int{})
	assert.True(t, errors.As(err, &ihe))
}

func TestHybridForecastFitFailures(t *testing.T) {
	cause := errors.New("solver diverged")

	_, err := NewHybridForecaster(&fakeMean{err: cause}, &fakeVol{variance: 1}).
		Forecast(context.Background(), "X", series(30), [3]int{})
	var efe *ExternalFitError
	require.True(t, errors.As(err, &efe))
	assert.Equal(t, StageMean, efe.Stage)
	assert.ErrorIs(t, err, cause)

	_, err = NewHybridForecaster(&fakeMean{}, &fakeVol{err: cause}).
		Forecast(context.Background(), "X", series(30), [3]int{})
	require.True(t, errors.As(err, &efe))
	assert.Equal(t, StageVolatility, efe.Stage)

	_, err = NewHybridForecaster(&fakeMean{}, &fakeVol{variance: -1}).
		Forecast(context.Background(), "X", series(30), [3]int{})
	require.True(t, errors.As(err, &efe))
	assert.Equal(t, StageVolatility, efe.Stage)
}
