package analytics

import (
	"math"
	"math/rand/v2"
	"time"

	"QuantLens/internal/domain/models"
)

var nan = math.NaN()

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func dates(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day(i)
	}
	return out
}

func table(symbols []string, cols ...[]float64) models.Table {
	return models.Table{Dates: dates(len(cols[0])), Symbols: symbols, Cols: cols}
}

// randomReturns draws a reproducible T×N table of gaussian returns.
func randomReturns(seed uint64, T, N int) models.ReturnTable {
	r := rand.New(rand.NewPCG(seed, seed*7+1))
	symbols := make([]string, N)
	cols := make([][]float64, N)
	for j := range cols {
		symbols[j] = string(rune('A' + j))
		cols[j] = make([]float64, T)
		for i := range cols[j] {
			cols[j][i] = r.NormFloat64() * 0.01
		}
	}
	return table(symbols, cols...)
}
