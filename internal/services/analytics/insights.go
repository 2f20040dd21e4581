package analytics

import (
	"math"
	"slices"

	"QuantLens/internal/domain/models"
)

const (
	strongCorrelation   = 0.7
	moderateCorrelation = 0.3

	positiveSentiment = 0.4
	mildSentiment     = 0.1
	negativeSentiment = -0.1

	emergingFraction   = 0.8
	concentrationRatio = 2
	dominantSpread     = 0.5

	highVolatilityShare     = 0.7
	moderateVolatilityShare = 0.4
)

// Insights reads a snapshot's sections into coarse levels. Any argument may be
// nil; a missing section yields its calmest level.
func Insights(rmt *models.RMTResult, corr *models.CorrelationMatrix, sentiment map[string]float64, indicators map[string]models.IndicatorSet) models.Insights {
	var out models.Insights

	out.StrongestCorrelation = strongestPair(corr)
	switch {
	case out.StrongestCorrelation > strongCorrelation:
		out.Correlation = models.LevelStrong
		out.Notes = append(out.Notes, "Strong co-movement across the selected instruments.")
	case out.StrongestCorrelation > moderateCorrelation:
		out.Correlation = models.LevelModerate
		out.Notes = append(out.Notes, "Moderate correlation among the selected instruments.")
	default:
		out.Correlation = models.LevelLow
		out.Notes = append(out.Notes, "Low correlation; diversification is effective.")
	}

	out.MeanSentiment = meanFinite(sentiment)
	switch {
	case out.MeanSentiment > positiveSentiment:
		out.Sentiment = models.SentimentPositive
	case out.MeanSentiment > mildSentiment:
		out.Sentiment = models.SentimentMildlyPositive
	case out.MeanSentiment < negativeSentiment:
		out.Sentiment = models.SentimentNegative
	default:
		out.Sentiment = models.SentimentNeutral
	}

	out.Regime = models.RegimeStable
	if rmt != nil && len(rmt.Eigenvalues) > 0 {
		n := len(rmt.Eigenvalues)
		l1 := rmt.Eigenvalues[n-1]
		var l2 float64
		if n > 1 {
			l2 = rmt.Eigenvalues[n-2]
		}
		lmax := rmt.Band.LambdaMax
		switch {
		case lmax > 0 && l1 > lmax:
			out.Regime = models.RegimeStress
			out.Notes = append(out.Notes, "Largest eigenvalue is above the noise limit: a common market mode drives returns.")
		case lmax > 0 && l1 > emergingFraction*lmax:
			out.Regime = models.RegimeEmerging
			out.Notes = append(out.Notes, "Largest eigenvalue is approaching the noise limit; correlations may be strengthening.")
		}
		// l2 <= 0 means the first mode carries everything
		out.Concentrated = l2 <= 0 || l1/l2 > concentrationRatio
		out.DominantMode = l1-l2 > dominantSpread*l1
		if out.Concentrated {
			out.Notes = append(out.Notes, "Returns are concentrated in a single factor.")
		}
	}

	out.VolatilityShare = aboveMedianShare(indicators)
	switch {
	case out.VolatilityShare > highVolatilityShare:
		out.VolatilityRisk = models.LevelHigh
	case out.VolatilityShare > moderateVolatilityShare:
		out.VolatilityRisk = models.LevelModerate
	default:
		out.VolatilityRisk = models.LevelLow
	}
	return out
}

// strongestPair is the largest upper-triangle entry, NaN read as zero.
func strongestPair(corr *models.CorrelationMatrix) float64 {
	if corr == nil {
		return 0
	}
	best, seen := 0.0, false
	for i, row := range corr.Values {
		for j := i + 1; j < len(row); j++ {
			v := row[j]
			if math.IsNaN(v) {
				v = 0
			}
			if !seen || v > best {
				best, seen = v, true
			}
		}
	}
	return best
}

func meanFinite(values map[string]float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// aboveMedianShare is the fraction of defined volatilities strictly above the
// upper median.
func aboveMedianShare(indicators map[string]models.IndicatorSet) float64 {
	vols := make([]float64, 0, len(indicators))
	for _, ind := range indicators {
		if !math.IsNaN(ind.Volatility) {
			vols = append(vols, ind.Volatility)
		}
	}
	if len(vols) == 0 {
		return 0
	}
	slices.Sort(vols)
	median := vols[len(vols)/2]
	var above int
	for _, v := range vols {
		if v > median {
			above++
		}
	}
	return float64(above) / float64(len(vols))
}
