package analytics

import (
	"math"

	"QuantLens/internal/domain/models"
)

const (
	rsiOverbought  = 70
	rsiOversold    = 30
	sentimentLevel = 0.2
)

// Predict labels an instrument from momentum m, RSI r and sentiment s.
// Undefined RSI places no constraint; undefined momentum is Uncertain.
func Predict(m, r, s float64, useSentiment bool) models.PredictionLabel {
	if math.IsNaN(m) {
		return models.Uncertain
	}
	rsiUndefined := math.IsNaN(r)
	switch {
	case m > 0 && (rsiUndefined || r < rsiOverbought) && (!useSentiment || s > sentimentLevel):
		return models.LikelyUp
	case m < 0 && (rsiUndefined || r > rsiOversold) && (!useSentiment || s < -sentimentLevel):
		return models.LikelyDown
	default:
		return models.Uncertain
	}
}

// PredictAll labels every instrument in indicators, in symbols order.
func PredictAll(symbols []string, indicators map[string]models.IndicatorSet, sentiment map[string]float64, useSentiment bool) []models.Prediction {
	out := make([]models.Prediction, 0, len(symbols))
	for _, sym := range symbols {
		ind, ok := indicators[sym]
		if !ok {
			ind = models.IndicatorSet{Momentum: math.NaN(), RSI: math.NaN(), Volatility: math.NaN()}
		}
		s := sentiment[sym]
		out = append(out, models.Prediction{
			Symbol:     sym,
			Label:      Predict(ind.Momentum, ind.RSI, s, useSentiment),
			Indicators: ind,
			Sentiment:  s,
		})
	}
	return out
}
