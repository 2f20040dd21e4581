package analytics

import (
	"math"
	"slices"
	"sort"
	"time"

	"QuantLens/internal/domain/models"
)

// BuildPriceTable aligns raw closes on the union of their dates within bounds.
// Columns are ordered by symbol. Non-finite or non-positive closes are dropped;
// gaps stay NaN. Instruments with no usable points are excluded and listed in
// the report; only a table with no instruments at all is an error.
func BuildPriceTable(raw models.RawSeries, bounds models.DateRange) (models.PriceTable, models.AlignReport, error) {
	var report models.AlignReport

	symbols := make([]string, 0, len(raw))
	for s := range raw {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	type column struct {
		symbol string
		closes map[time.Time]float64
	}
	cols := make([]column, 0, len(symbols))
	dateSet := make(map[time.Time]struct{})

	for _, s := range symbols {
		closes := make(map[time.Time]float64, len(raw[s]))
		for _, p := range raw[s] {
			if !isUsablePrice(p.Close) {
				continue
			}
			d := dayOf(p.Date)
			if !bounds.Contains(d) {
				continue
			}
			closes[d] = p.Close
			dateSet[d] = struct{}{}
		}
		if len(closes) == 0 {
			err := &InsufficientDataError{Symbol: s, Reason: "no price points"}
			report.Skipped = append(report.Skipped, models.SkippedInstrument{Symbol: s, Reason: err.Error()})
			continue
		}
		cols = append(cols, column{symbol: s, closes: closes})
	}

	if len(cols) == 0 {
		return models.PriceTable{}, report, &InsufficientDataError{Reason: "no instrument has price data"}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	table := models.PriceTable{
		Dates:   dates,
		Symbols: make([]string, len(cols)),
		Cols:    make([][]float64, len(cols)),
	}
	for j, c := range cols {
		table.Symbols[j] = c.symbol
		col := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := c.closes[d]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		table.Cols[j] = col
	}
	return table, report, nil
}

// ComputeLogReturns returns ln(p[t]/p[t-1]) against the previous row. The
// first row is dropped, as are rows where every instrument is missing.
func ComputeLogReturns(prices models.PriceTable) models.ReturnTable {
	out := models.ReturnTable{
		Symbols: append([]string(nil), prices.Symbols...),
		Cols:    make([][]float64, len(prices.Symbols)),
	}
	n := prices.Rows()
	keep := make([]int, 0, max(n-1, 0))
	for i := 1; i < n; i++ {
		for j := range prices.Cols {
			if !math.IsNaN(logReturn(prices.Cols[j][i-1], prices.Cols[j][i])) {
				keep = append(keep, i)
				break
			}
		}
	}

	out.Dates = make([]time.Time, len(keep))
	for k, i := range keep {
		out.Dates[k] = prices.Dates[i]
	}
	for j := range prices.Cols {
		col := make([]float64, len(keep))
		for k, i := range keep {
			col[k] = logReturn(prices.Cols[j][i-1], prices.Cols[j][i])
		}
		out.Cols[j] = col
	}
	return out
}

func logReturn(prev, cur float64) float64 {
	if !isUsablePrice(prev) || !isUsablePrice(cur) {
		return math.NaN()
	}
	return math.Log(cur / prev)
}

func isUsablePrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
