package models

// AnalysisRequest selects the universe and window for an analytics endpoint.
// Symbols may be repeated or comma separated; dates are YYYY-MM-DD.
type AnalysisRequest struct {
	Symbols []string `query:"symbols" validate:"omitempty,max=50,dive,max=32"`
	Start   string   `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End     string   `query:"end" validate:"omitempty,datetime=2006-01-02"`
}

type PredictionRequest struct {
	AnalysisRequest
	// UseSentiment overrides the configured default when set.
	UseSentiment string `query:"use_sentiment" validate:"omitempty,oneof=true false 1 0"`
}

type SpectrumRequest struct {
	AnalysisRequest
	Window int `query:"window" validate:"omitempty,gte=2,lte=1000"`
}

type ForecastRequest struct {
	AnalysisRequest
	Symbol string `param:"symbol" validate:"required,max=32"`
	// Order is "p,d,q"; empty uses the configured default.
	Order string `query:"order" validate:"omitempty,max=16"`
}

type HistoricalRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
	Period string `query:"period" validate:"omitempty,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y 20y max"`
}
