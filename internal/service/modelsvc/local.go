package modelsvc

import (
	"context"
	"fmt"
	"math"
	"strings"

	"QuantLens/internal/domain/service"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EWMALambda is the RiskMetrics decay for daily data.
const EWMALambda = 0.94

// ARFitter fits an AR(p) model with intercept by ordinary least squares on
// the d-times differenced series. The moving-average order is not estimated.
type ARFitter struct{}

func (ARFitter) FitMean(_ context.Context, series []float64, order [3]int) (service.MeanModel, error) {
	p, d, q := order[0], order[1], order[2]
	if p < 0 || d < 0 || q < 0 {
		return nil, fmt.Errorf("invalid order %v", order)
	}

	lasts := make([]float64, d)
	x := series
	for k := 0; k < d; k++ {
		if len(x) < 2 {
			return nil, fmt.Errorf("series too short to difference %d times", d)
		}
		lasts[k] = x[len(x)-1]
		x = diff(x)
	}

	rows := len(x) - p
	if rows < p+2 {
		return nil, fmt.Errorf("need at least %d observations for AR(%d), have %d", 2*p+2, p, len(x))
	}

	design := mat.NewDense(rows, p+1, nil)
	target := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		t := i + p
		design.Set(i, 0, 1)
		for k := 1; k <= p; k++ {
			design.Set(i, k, x[t-k])
		}
		target.SetVec(i, x[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		return nil, fmt.Errorf("least squares: %w", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(target, &fitted)
	sigma2 := mat.Dot(&resid, &resid) / float64(rows)

	coef := make([]float64, p+1)
	for i := range coef {
		coef[i] = beta.AtVec(i)
	}
	tail := append([]float64(nil), x[len(x)-p:]...)
	return &arModel{order: order, coef: coef, tail: tail, lasts: lasts, sigma2: sigma2, n: len(series)}, nil
}

type arModel struct {
	order  [3]int
	coef   []float64 // intercept, phi_1..phi_p
	tail   []float64 // last p values of the differenced series
	lasts  []float64 // last level of each differencing stage
	sigma2 float64
	n      int
}

func (m *arModel) Forecast(h int) (float64, error) {
	if h < 1 {
		return 0, fmt.Errorf("horizon must be positive, got %d", h)
	}
	p := len(m.coef) - 1
	hist := append([]float64(nil), m.tail...)
	path := make([]float64, h)
	for step := 0; step < h; step++ {
		v := m.coef[0]
		for k := 1; k <= p; k++ {
			v += m.coef[k] * hist[len(hist)-k]
		}
		path[step] = v
		hist = append(hist, v)
	}
	for k := len(m.lasts) - 1; k >= 0; k-- {
		level := m.lasts[k]
		for i := range path {
			level += path[i]
			path[i] = level
		}
	}
	return path[h-1], nil
}

func (m *arModel) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AR(%d) on %d-differenced series (requested ARIMA%v), n=%d, const=%.6g",
		len(m.coef)-1, len(m.lasts), m.order, m.n, m.coef[0])
	for k := 1; k < len(m.coef); k++ {
		fmt.Fprintf(&b, ", ar.L%d=%.6g", k, m.coef[k])
	}
	fmt.Fprintf(&b, ", sigma2=%.6g", m.sigma2)
	return b.String()
}

// EWMAFitter is an exponentially weighted variance model seeded with the
// sample variance.
type EWMAFitter struct {
	Lambda float64
}

func (f EWMAFitter) FitVolatility(_ context.Context, seriesPct []float64) (service.VolatilityModel, error) {
	if len(seriesPct) < 2 {
		return nil, fmt.Errorf("need at least 2 observations, have %d", len(seriesPct))
	}
	lambda := f.Lambda
	if lambda <= 0 || lambda >= 1 {
		lambda = EWMALambda
	}

	variance := stat.Variance(seriesPct, nil)
	cond := make([]float64, len(seriesPct))
	for t, r := range seriesPct {
		cond[t] = math.Sqrt(variance)
		variance = lambda*variance + (1-lambda)*r*r
	}
	return &ewmaModel{cond: cond, next: variance}, nil
}

type ewmaModel struct {
	cond []float64
	next float64
}

func (m *ewmaModel) ConditionalVolatility() []float64 { return m.cond }

// ForecastVariance is flat across horizons.
func (m *ewmaModel) ForecastVariance(h int) (float64, error) {
	if h < 1 {
		return 0, fmt.Errorf("horizon must be positive, got %d", h)
	}
	return m.next, nil
}

func diff(x []float64) []float64 {
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

var (
	_ service.MeanModelFitter       = ARFitter{}
	_ service.VolatilityModelFitter = EWMAFitter{}
)
