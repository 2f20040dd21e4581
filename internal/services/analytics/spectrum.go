package analytics

import (
	"iter"
	"math"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const DefaultRollingWindow = 60

// RollingSpectrum lazily yields the two largest eigenvalues of the correlation
// matrix over each trailing window of W rows. The point for row i uses rows
// [i-W, i) and carries Dates[i]; only rows complete across all instruments
// enter a window, and windows with fewer than two such rows are skipped. The
// returned band is the noise band for T=W and N instruments.
func RollingSpectrum(returns models.ReturnTable, W int) (iter.Seq[models.SpectrumPoint], models.NoiseBand) {
	if W <= 1 {
		W = DefaultRollingWindow
	}
	n := len(returns.Symbols)
	band, _ := MarchenkoPasturBounds(W, n)

	seq := func(yield func(models.SpectrumPoint) bool) {
		if n == 0 {
			return
		}
		complete := completeRows(returns)
		buf := make([]float64, 0, W*n)
		for i := W; i < returns.Rows(); i++ {
			buf = buf[:0]
			rows := 0
			for r := i - W; r < i; r++ {
				if !complete[r] {
					continue
				}
				for j := 0; j < n; j++ {
					buf = append(buf, returns.Cols[j][r])
				}
				rows++
			}
			if rows < 2 {
				continue
			}
			l1, l2, ok := topEigenvalues(mat.NewDense(rows, n, buf))
			if !ok {
				continue
			}
			if !yield(models.SpectrumPoint{
				Date:    returns.Dates[i],
				Lambda1: l1,
				Lambda2: l2,
				Spread:  l1 - l2,
			}) {
				return
			}
		}
	}
	return seq, band
}

func completeRows(t models.ReturnTable) []bool {
	out := make([]bool, t.Rows())
	for i := range out {
		out[i] = true
		for j := range t.Cols {
			if math.IsNaN(t.Cols[j][i]) {
				out[i] = false
				break
			}
		}
	}
	return out
}

func topEigenvalues(obs *mat.Dense) (l1, l2 float64, ok bool) {
	_, n := obs.Dims()
	if n == 1 {
		return 1, 0, true
	}
	corr := mat.NewSymDense(n, nil)
	stat.CorrelationMatrix(corr, obs, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			if v := corr.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				corr.SetSym(i, j, 0)
			}
		}
	}

	var es mat.EigenSym
	if !es.Factorize(corr, false) {
		return 0, 0, false
	}
	vals := es.Values(nil)
	return vals[n-1], vals[n-2], true
}
