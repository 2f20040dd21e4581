package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ramp(from, to float64) []float64 {
	var out []float64
	step := 1.0
	if to < from {
		step = -1
	}
	for v := from; (step > 0 && v <= to) || (step < 0 && v >= to); v += step {
		out = append(out, v)
	}
	return out
}

func TestMomentum(t *testing.T) {
	assert.InDelta(t, 7.0, Momentum(ramp(1, 8), 7), 1e-12)
	assert.InDelta(t, 0.1, Momentum([]float64{100, 50, 110}, 2), 1e-12)
	assert.True(t, math.IsNaN(Momentum(ramp(1, 5), 10)), "5 points with window 10")
	assert.True(t, math.IsNaN(Momentum(ramp(1, 7), 7)))
}

func TestRSIBoundaries(t *testing.T) {
	assert.Equal(t, 100.0, RSI(ramp(1, 20), 14), "all gains")
	assert.Equal(t, 0.0, RSI(ramp(20, 1), 14), "all losses")
	assert.Equal(t, 100.0, RSI([]float64{5, 5, 5, 5}, 3), "flat series has no losses")
	assert.True(t, math.IsNaN(RSI(ramp(1, 14), 14)), "needs period+1 points")
	assert.False(t, math.IsNaN(RSI(ramp(1, 15), 14)))
}

func TestRSIRangeOnRandomWalks(t *testing.T) {
	returns := randomReturns(5, 60, 10)
	for j := range returns.Cols {
		prices := []float64{100}
		for _, r := range returns.Cols[j] {
			prices = append(prices, prices[len(prices)-1]*math.Exp(r*5))
		}
		v := RSI(prices, 14)
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestRSIKnownValue(t *testing.T) {
	// gains 2+2, losses 1+1 over period 4: RS = 2, RSI = 100 - 100/3
	assert.InDelta(t, 100-100.0/3, RSI([]float64{10, 12, 11, 13, 12}, 4), 1e-12)
}

func TestAnnualizedVolatility(t *testing.T) {
	want := math.Sqrt(0.01*0.01*2) * math.Sqrt(252)
	assert.InDelta(t, want, AnnualizedVolatility([]float64{0.01, -0.01}), 1e-12)
	assert.True(t, math.IsNaN(AnnualizedVolatility([]float64{0.01})))
	assert.True(t, math.IsNaN(AnnualizedVolatility(nil)))
}

func TestComputeIndicatorsUsesValidObservations(t *testing.T) {
	prices := table([]string{"A", "B"},
		[]float64{1, nan, 2, 3, nan, 4},
		[]float64{10, 11, 12, 13, 14, 15},
	)
	returns := ComputeLogReturns(prices)

	got := ComputeIndicators(prices, returns, IndicatorOptions{MomentumWindow: 3, RSIPeriod: 3})

	assert.InDelta(t, 3.0, got["A"].Momentum, 1e-12, "4/1 - 1 across gaps")
	assert.Equal(t, 100.0, got["A"].RSI)
	assert.InDelta(t, 15.0/12-1, got["B"].Momentum, 1e-12)
	assert.False(t, math.IsNaN(got["B"].Volatility))
}

func TestComputeIndicatorsDefaults(t *testing.T) {
	prices := table([]string{"A"}, ramp(1, 5))
	got := ComputeIndicators(prices, ComputeLogReturns(prices), IndicatorOptions{})
	assert.True(t, math.IsNaN(got["A"].Momentum))
	assert.True(t, math.IsNaN(got["A"].RSI))
	assert.False(t, math.IsNaN(got["A"].Volatility))
}
