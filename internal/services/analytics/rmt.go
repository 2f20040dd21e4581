package analytics

import (
	"math"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/mat"
)

// MarchenkoPasturBounds returns the eigenvalue band expected from a pure-noise
// correlation matrix of N instruments over T observations.
func MarchenkoPasturBounds(T, N int) (models.NoiseBand, error) {
	if T <= 0 || N <= 0 {
		return models.NoiseBand{}, &InvalidDimensionsError{T: T, N: N}
	}
	q := float64(T) / float64(N)
	var s float64
	if q >= 1 {
		s = 1 / math.Sqrt(q)
	} else {
		s = math.Sqrt(q)
	}
	return models.NoiseBand{
		LambdaMin: (1 - s) * (1 - s),
		LambdaMax: (1 + s) * (1 + s),
		Q:         q,
	}, nil
}

// EigenDecompose returns the ascending eigen-spectrum of a symmetric matrix.
// NaN entries are read as zero off the diagonal and one on it. ok is false if
// the factorization did not converge.
func EigenDecompose(values [][]float64) (models.EigenSpectrum, bool) {
	n := len(values)
	if n == 0 {
		return models.EigenSpectrum{}, false
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, decompositionEntry(values, i, j))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return models.EigenSpectrum{}, false
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	spec := models.EigenSpectrum{
		Values:  es.Values(nil),
		Vectors: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		spec.Vectors[i] = mat.Row(nil, i, &vecs)
	}
	return spec, true
}

// DenoiseCorrelation clips the eigenvalues of corr that fall inside the
// Marchenko-Pastur band for T observations, replacing them with their mean,
// and rebuilds a symmetric matrix with unit diagonal. Pairs that were NaN in
// corr stay NaN. If the eigen-decomposition fails the symmetrized input is
// returned unchanged apart from the diagonal.
func DenoiseCorrelation(corr models.CorrelationMatrix, T int) (models.RMTResult, error) {
	n := len(corr.Symbols)
	band, err := MarchenkoPasturBounds(T, n)
	if err != nil {
		return models.RMTResult{}, err
	}

	result := models.RMTResult{Band: band}
	spec, ok := EigenDecompose(corr.Values)
	if !ok {
		result.Denoised = symmetrized(corr, nil)
		return result, nil
	}
	result.Eigenvalues = spec.Values

	clipped := append([]float64(nil), spec.Values...)
	var sum float64
	for _, l := range clipped {
		if band.Contains(l) {
			sum += l
			result.NoiseCount++
		}
	}
	if result.NoiseCount > 0 {
		mean := sum / float64(result.NoiseCount)
		for k, l := range clipped {
			if band.Contains(l) {
				clipped[k] = mean
			}
		}
	}

	v := mat.NewDense(n, n, nil)
	for i, row := range spec.Vectors {
		v.SetRow(i, row)
	}
	var vl, rebuilt mat.Dense
	vl.Mul(v, mat.NewDiagDense(n, clipped))
	rebuilt.Mul(&vl, v.T())

	result.Denoised = symmetrized(corr, &rebuilt)
	return result, nil
}

// symmetrized averages src with its transpose and sets the diagonal to 1.
// Entries are taken from src when given, otherwise from corr. Pairs missing
// in corr remain NaN.
func symmetrized(corr models.CorrelationMatrix, src mat.Matrix) models.CorrelationMatrix {
	n := len(corr.Symbols)
	at := func(i, j int) float64 {
		if src != nil {
			return src.At(i, j)
		}
		return corr.Values[i][j]
	}

	out := models.CorrelationMatrix{
		Symbols: append([]string(nil), corr.Symbols...),
		Values:  make([][]float64, n),
	}
	for i := range out.Values {
		out.Values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		out.Values[i][i] = 1
		for j := i + 1; j < n; j++ {
			var v float64
			if math.IsNaN(corr.Values[i][j]) || math.IsNaN(corr.Values[j][i]) {
				v = math.NaN()
			} else {
				v = (at(i, j) + at(j, i)) / 2
			}
			out.Values[i][j] = v
			out.Values[j][i] = v
		}
	}
	return out
}

func decompositionEntry(values [][]float64, i, j int) float64 {
	if i == j {
		if math.IsNaN(values[i][i]) {
			return 1
		}
		return values[i][i]
	}
	a, b := values[i][j], values[j][i]
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0
	}
	return (a + b) / 2
}
