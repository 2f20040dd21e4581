package analytics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"QuantLens/internal/domain/models"
)

// LatestChanges compares each instrument's last two defined closes. Instruments
// with fewer than two are left out.
func LatestChanges(prices models.PriceTable) []models.InstrumentChange {
	out := make([]models.InstrumentChange, 0, len(prices.Symbols))
	for j, sym := range prices.Symbols {
		last, prev := -1, -1
		for i := len(prices.Cols[j]) - 1; i >= 0 && prev < 0; i-- {
			if math.IsNaN(prices.Cols[j][i]) {
				continue
			}
			if last < 0 {
				last = i
			} else {
				prev = i
			}
		}
		if prev < 0 {
			continue
		}
		cur, before := prices.Cols[j][last], prices.Cols[j][prev]
		ch := models.InstrumentChange{
			Symbol:    sym,
			Date:      prices.Dates[last],
			Close:     cur,
			PrevClose: before,
			Change:    cur - before,
		}
		if before != 0 {
			ch.ChangePercent = 100 * ch.Change / before
		}
		out = append(out, ch)
	}
	return out
}

// SummarizeChanges counts gainers and losers and picks the extremes by
// percentage change. Ties keep the first instrument.
func SummarizeChanges(changes []models.InstrumentChange) models.MarketStats {
	stats := models.MarketStats{Total: len(changes), Changes: changes}
	for i := range changes {
		c := &changes[i]
		switch {
		case c.Change > 0:
			stats.Gainers++
		case c.Change < 0:
			stats.Losers++
		default:
			stats.Unchanged++
		}
		if stats.TopGainer == nil || c.ChangePercent > stats.TopGainer.ChangePercent {
			stats.TopGainer = c
		}
		if stats.TopLoser == nil || c.ChangePercent < stats.TopLoser.ChangePercent {
			stats.TopLoser = c
		}
	}
	return stats
}

// PeriodStart resolves a chart period such as "5d", "3mo", "10y" or "max"
// against end.
func PeriodStart(end time.Time, period string) (time.Time, error) {
	if period == "max" {
		return time.Unix(0, 0).UTC(), nil
	}
	for _, unit := range []string{"mo", "d", "y"} {
		num, ok := strings.CutSuffix(period, unit)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			break
		}
		switch unit {
		case "d":
			return end.AddDate(0, 0, -n), nil
		case "mo":
			return end.AddDate(0, -n, 0), nil
		default:
			return end.AddDate(-n, 0, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown period %q", period)
}
