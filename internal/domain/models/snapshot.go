package models

import "time"

// Snapshot is a full analytics pass over a universe of instruments.
// Sections that failed are absent and explained in Errors.
type Snapshot struct {
	GeneratedAt  time.Time                 `json:"generated_at"`
	Range        DateRange                 `json:"range"`
	Symbols      []string                  `json:"symbols"`
	Skipped      []SkippedInstrument       `json:"skipped,omitempty"`
	Observations int                       `json:"observations"`
	Correlation  *CorrelationMatrix        `json:"correlation,omitempty"`
	RMT          *RMTResult                `json:"rmt,omitempty"`
	Sentiment    map[string]float64        `json:"sentiment,omitempty"`
	Adjusted     *CorrelationMatrix        `json:"adjusted_correlation,omitempty"`
	Indicators   map[string]IndicatorSet   `json:"indicators,omitempty"`
	Predictions  []Prediction              `json:"predictions,omitempty"`
	Spectrum     *SpectrumSeries           `json:"spectrum,omitempty"`
	Forecasts    map[string]HybridForecast `json:"forecasts,omitempty"`
	Insights     *Insights                 `json:"insights,omitempty"`
	Errors       map[string]string         `json:"errors,omitempty"`
}
