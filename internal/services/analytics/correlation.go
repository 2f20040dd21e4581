package analytics

import (
	"math"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// CorrelationMatrix estimates pairwise Pearson correlation over jointly
// observed rows. Pairs with fewer than two joint observations, or with a
// constant side, are NaN. The diagonal is 1 for instruments with at least
// two observations.
func CorrelationMatrix(returns models.ReturnTable) (models.CorrelationMatrix, error) {
	n := len(returns.Symbols)
	if n < 2 {
		return models.CorrelationMatrix{}, &InsufficientDataError{Reason: "correlation needs at least 2 instruments"}
	}

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		if countValid(returns.Cols[i]) >= 2 {
			values[i][i] = 1
		} else {
			values[i][i] = math.NaN()
		}
		for j := i + 1; j < n; j++ {
			c := pairwiseCorrelation(returns.Cols[i], returns.Cols[j])
			values[i][j] = c
			values[j][i] = c
		}
	}

	return models.CorrelationMatrix{
		Symbols: append([]string(nil), returns.Symbols...),
		Values:  values,
	}, nil
}

func pairwiseCorrelation(a, b []float64) float64 {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(a))
	for k := range a {
		if math.IsNaN(a[k]) || math.IsNaN(b[k]) {
			continue
		}
		x = append(x, a[k])
		y = append(y, b[k])
	}
	if len(x) < 2 {
		return math.NaN()
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return math.NaN()
	}
	return clamp(c, -1, 1)
}

func countValid(col []float64) int {
	n := 0
	for _, v := range col {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
