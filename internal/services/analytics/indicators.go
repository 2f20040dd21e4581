package analytics

import (
	"math"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMomentumWindow = 7
	DefaultRSIPeriod      = 14
	TradingDaysPerYear    = 252
)

// IndicatorOptions sets indicator look-backs in observations.
type IndicatorOptions struct {
	MomentumWindow int
	RSIPeriod      int
}

func DefaultIndicatorOptions() IndicatorOptions {
	return IndicatorOptions{MomentumWindow: DefaultMomentumWindow, RSIPeriod: DefaultRSIPeriod}
}

// Momentum is p[last]/p[last-window] - 1, NaN with fewer than window+1 prices.
func Momentum(prices []float64, window int) float64 {
	n := len(prices)
	if window <= 0 || n < window+1 {
		return math.NaN()
	}
	return prices[n-1]/prices[n-1-window] - 1
}

// RSI uses simple means of the last period gains and losses. It is 100 when
// there were no losses and NaN with fewer than period+1 prices.
func RSI(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 0 || n < period+1 {
		return math.NaN()
	}
	var gain, loss float64
	for k := n - period; k < n; k++ {
		d := prices[k] - prices[k-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// AnnualizedVolatility is the sample standard deviation of returns scaled by
// sqrt(252). NaN with fewer than two returns.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// ComputeIndicators evaluates indicators per instrument on its own valid
// observations, so gaps in the aligned table do not shorten other columns.
func ComputeIndicators(prices models.PriceTable, returns models.ReturnTable, opts IndicatorOptions) map[string]models.IndicatorSet {
	if opts.MomentumWindow <= 0 {
		opts.MomentumWindow = DefaultMomentumWindow
	}
	if opts.RSIPeriod <= 0 {
		opts.RSIPeriod = DefaultRSIPeriod
	}

	out := make(map[string]models.IndicatorSet, len(prices.Symbols))
	for j, s := range prices.Symbols {
		p := prices.Valid(j)
		vol := math.NaN()
		if k := returns.Index(s); k >= 0 {
			vol = AnnualizedVolatility(returns.Valid(k))
		}
		out[s] = models.IndicatorSet{
			Momentum:   Momentum(p, opts.MomentumWindow),
			RSI:        RSI(p, opts.RSIPeriod),
			Volatility: vol,
		}
	}
	return out
}
