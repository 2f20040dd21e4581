package models

import (
	"encoding/json"
	"math"
	"time"
)

// CorrelationMatrix is a symmetric matrix indexed like Symbols. NaN marks
// pairs without enough joint observations.
type CorrelationMatrix struct {
	Symbols []string
	Values  [][]float64
}

// At returns the entry for a symbol pair, NaN if either is unknown.
func (m CorrelationMatrix) At(a, b string) float64 {
	i, j := -1, -1
	for k, s := range m.Symbols {
		if s == a {
			i = k
		}
		if s == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return m.Values[i][j]
}

// Clone returns a deep copy.
func (m CorrelationMatrix) Clone() CorrelationMatrix {
	out := CorrelationMatrix{
		Symbols: append([]string(nil), m.Symbols...),
		Values:  make([][]float64, len(m.Values)),
	}
	for i, row := range m.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

type correlationJSON struct {
	Symbols []string     `json:"symbols"`
	Values  [][]*float64 `json:"values"`
}

func (m CorrelationMatrix) MarshalJSON() ([]byte, error) {
	out := correlationJSON{Symbols: m.Symbols, Values: make([][]*float64, len(m.Values))}
	for i, row := range m.Values {
		out.Values[i] = make([]*float64, len(row))
		for j, v := range row {
			out.Values[i][j] = nullable(v)
		}
	}
	return json.Marshal(out)
}

func (m *CorrelationMatrix) UnmarshalJSON(b []byte) error {
	var in correlationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Symbols = in.Symbols
	m.Values = make([][]float64, len(in.Values))
	for i, row := range in.Values {
		m.Values[i] = make([]float64, len(row))
		for j, p := range row {
			m.Values[i][j] = fromNullable(p)
		}
	}
	return nil
}

// EigenSpectrum holds ascending eigenvalues; Vectors[i][k] is component i of
// the eigenvector belonging to Values[k].
type EigenSpectrum struct {
	Values  []float64
	Vectors [][]float64
}

// NoiseBand is the Marchenko-Pastur interval for a T×N sample.
type NoiseBand struct {
	LambdaMin float64 `json:"lambda_min"`
	LambdaMax float64 `json:"lambda_max"`
	Q         float64 `json:"q"`
}

// Contains reports whether lambda lies in the inclusive band.
func (b NoiseBand) Contains(lambda float64) bool {
	return lambda >= b.LambdaMin && lambda <= b.LambdaMax
}

// RMTResult is the outcome of eigenvalue clipping.
type RMTResult struct {
	Eigenvalues []float64         `json:"eigenvalues"`
	Band        NoiseBand         `json:"band"`
	NoiseCount  int               `json:"noise_count"`
	Denoised    CorrelationMatrix `json:"denoised"`
}

// IndicatorSet holds per-instrument technical indicators; NaN means undefined
// and is encoded as JSON null.
type IndicatorSet struct {
	Momentum   float64
	RSI        float64
	Volatility float64
}

type indicatorJSON struct {
	Momentum   *float64 `json:"momentum"`
	RSI        *float64 `json:"rsi"`
	Volatility *float64 `json:"volatility"`
}

func (s IndicatorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(indicatorJSON{
		Momentum:   nullable(s.Momentum),
		RSI:        nullable(s.RSI),
		Volatility: nullable(s.Volatility),
	})
}

func (s *IndicatorSet) UnmarshalJSON(b []byte) error {
	var in indicatorJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.Momentum = fromNullable(in.Momentum)
	s.RSI = fromNullable(in.RSI)
	s.Volatility = fromNullable(in.Volatility)
	return nil
}

type PredictionLabel string

const (
	LikelyUp   PredictionLabel = "Likely Up"
	LikelyDown PredictionLabel = "Likely Down"
	Uncertain  PredictionLabel = "Uncertain"
)

// Prediction is the label derived for one instrument with its inputs.
type Prediction struct {
	Symbol     string          `json:"symbol"`
	Label      PredictionLabel `json:"label"`
	Indicators IndicatorSet    `json:"indicators"`
	Sentiment  float64         `json:"sentiment"`
}

// HybridForecast is a one-step-ahead forecast in percent units.
type HybridForecast struct {
	Symbol                string    `json:"symbol"`
	Mean                  float64   `json:"mean_pct"`
	Volatility            float64   `json:"volatility_pct"`
	Lower                 float64   `json:"lower_pct"`
	Upper                 float64   `json:"upper_pct"`
	MeanSummary           string    `json:"mean_summary"`
	ConditionalVolatility []float64 `json:"conditional_volatility"`
	Observations          int       `json:"observations"`
}

// SpectrumPoint is one window of the rolling eigen-spectrum.
type SpectrumPoint struct {
	Date    time.Time `json:"date"`
	Lambda1 float64   `json:"lambda1"`
	Lambda2 float64   `json:"lambda2"`
	Spread  float64   `json:"spread"`
}

// SpectrumSeries is a materialised rolling spectrum.
type SpectrumSeries struct {
	Window int             `json:"window"`
	Band   NoiseBand       `json:"band"`
	Points []SpectrumPoint `json:"points"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Insight levels.
const (
	LevelStrong   = "strong"
	LevelModerate = "moderate"
	LevelLow      = "low"
	LevelHigh     = "high"

	SentimentPositive       = "positive"
	SentimentMildlyPositive = "mildly_positive"
	SentimentNeutral        = "neutral"
	SentimentNegative       = "negative"

	RegimeStress   = "stress"
	RegimeEmerging = "emerging"
	RegimeStable   = "stable"
)

// Insights are heuristic readings of a snapshot's correlation, sentiment,
// spectrum and volatility sections.
type Insights struct {
	Correlation          string   `json:"correlation"`
	StrongestCorrelation float64  `json:"strongest_correlation"`
	Sentiment            string   `json:"sentiment"`
	MeanSentiment        float64  `json:"mean_sentiment"`
	Regime               string   `json:"regime"`
	Concentrated         bool     `json:"concentrated"`
	DominantMode         bool     `json:"dominant_mode"`
	VolatilityRisk       string   `json:"volatility_risk"`
	VolatilityShare      float64  `json:"volatility_share"`
	Notes                []string `json:"notes"`
}
