package service

import (
	"context"
	"time"

	"QuantLens/internal/domain/models"
)

// PriceFetcher retrieves daily closes. It may return fewer instruments than
// requested; missing ones are simply absent from the result.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (models.RawSeries, error)
}

// NewsFetcher retrieves recent articles per symbol.
type NewsFetcher interface {
	FetchNews(ctx context.Context, symbols []string, lookbackDays int) (map[string][]models.NewsArticle, error)
}

// SentimentScorer classifies texts. Results are in input order; empty input
// yields empty output.
type SentimentScorer interface {
	Score(ctx context.Context, texts []string) ([]models.SentimentResult, error)
}

// MeanModel is a fitted conditional-mean model.
type MeanModel interface {
	Forecast(h int) (float64, error)
	Summary() string
}

// MeanModelFitter fits an ARIMA-style mean model of the given (p, d, q) order.
type MeanModelFitter interface {
	FitMean(ctx context.Context, series []float64, order [3]int) (MeanModel, error)
}

// VolatilityModel is a fitted conditional-variance model on percent returns.
type VolatilityModel interface {
	ConditionalVolatility() []float64
	ForecastVariance(h int) (float64, error)
}

// VolatilityModelFitter fits a volatility model on percent-scaled returns.
type VolatilityModelFitter interface {
	FitVolatility(ctx context.Context, seriesPct []float64) (VolatilityModel, error)
}
