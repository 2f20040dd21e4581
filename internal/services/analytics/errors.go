package analytics

import "fmt"

// Fit stages reported by ExternalFitError.
const (
	StageMean       = "mean"
	StageVolatility = "volatility"
)

// InsufficientDataError reports an instrument or matrix without enough
// observations. Symbol is empty when the whole request is affected.
type InsufficientDataError struct {
	Symbol string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if e.Symbol == "" {
		return "insufficient data: " + e.Reason
	}
	return fmt.Sprintf("insufficient data for %s: %s", e.Symbol, e.Reason)
}

// InvalidDimensionsError reports a non-positive sample size or instrument count.
type InvalidDimensionsError struct {
	T, N int
}

func (e *InvalidDimensionsError) Error() string {
	return fmt.Sprintf("invalid dimensions: T=%d N=%d, both must be positive", e.T, e.N)
}

// InsufficientHistoryError reports a series too short to fit a forecast.
type InsufficientHistoryError struct {
	Symbol string
	Have   int
	Need   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: have %d returns, need %d", e.Symbol, e.Have, e.Need)
}

// ExternalFitError wraps a failure of an external model fitter.
type ExternalFitError struct {
	Stage  string
	Symbol string
	Err    error
}

func (e *ExternalFitError) Error() string {
	return fmt.Sprintf("%s model fit failed for %s: %v", e.Stage, e.Symbol, e.Err)
}

func (e *ExternalFitError) Unwrap() error { return e.Err }
