package analytics

import (
	"math"

	"QuantLens/internal/domain/models"
)

const DefaultSentimentAlpha = 0.3

// AdjustCorrelation scales every entry by 1 + alpha*(s_i+s_j)/2 and clips to
// [-1, 1]. Instruments without a score count as neutral; NaN entries stay NaN.
func AdjustCorrelation(raw models.CorrelationMatrix, scores map[string]float64, alpha float64) models.CorrelationMatrix {
	out := raw.Clone()
	for i, si := range raw.Symbols {
		for j, sj := range raw.Symbols {
			v := raw.Values[i][j]
			if math.IsNaN(v) {
				continue
			}
			factor := 1 + alpha*(scores[si]+scores[sj])/2
			out.Values[i][j] = clamp(v*factor, -1, 1)
		}
	}
	return out
}

// AggregateSentiment averages article scores per symbol. Symbols without
// scored articles are absent and read as 0 by callers.
func AggregateSentiment(scores map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for s, xs := range scores {
		if len(xs) == 0 {
			continue
		}
		var sum float64
		for _, x := range xs {
			sum += x
		}
		out[s] = clamp(sum/float64(len(xs)), -1, 1)
	}
	return out
}
