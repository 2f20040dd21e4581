package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol = errors.New("symbol not in the analysed universe")
	ErrNoPriceData   = errors.New("no price data found")
)

// UpstreamError wraps a collaborator failure that left nothing to analyse.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
