package models

import (
	"math"
	"time"
)

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// RawSeries maps symbol to its unaligned price history.
type RawSeries map[string][]PricePoint

// DateRange bounds a query. Zero Start or End means unbounded on that side.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the inclusive range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Table is a date-aligned matrix stored column-major: Cols[j][i] is the value
// of Symbols[j] on Dates[i]. Missing values are NaN.
type Table struct {
	Dates   []time.Time
	Symbols []string
	Cols    [][]float64
}

type (
	PriceTable  = Table
	ReturnTable = Table
)

// Rows returns the number of dates.
func (t *Table) Rows() int { return len(t.Dates) }

// Index returns the column of symbol or -1.
func (t *Table) Index(symbol string) int {
	for j, s := range t.Symbols {
		if s == symbol {
			return j
		}
	}
	return -1
}

// Column returns the column of symbol.
func (t *Table) Column(symbol string) ([]float64, bool) {
	j := t.Index(symbol)
	if j < 0 {
		return nil, false
	}
	return t.Cols[j], true
}

// Valid returns the non-missing values of column j in date order.
func (t *Table) Valid(j int) []float64 {
	out := make([]float64, 0, len(t.Cols[j]))
	for _, v := range t.Cols[j] {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// SkippedInstrument records an instrument dropped during alignment.
type SkippedInstrument struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// AlignReport lists what BuildPriceTable left out.
type AlignReport struct {
	Skipped []SkippedInstrument `json:"skipped,omitempty"`
}

// AnalysisMeta describes the data an analytics answer was computed on.
type AnalysisMeta struct {
	Range        DateRange           `json:"range"`
	Symbols      []string            `json:"symbols"`
	Skipped      []SkippedInstrument `json:"skipped,omitempty"`
	Observations int                 `json:"observations"`
}

// PriceHistory is the daily close history of one instrument over a period.
type PriceHistory struct {
	Symbol string       `json:"symbol"`
	Period string       `json:"period"`
	Range  DateRange    `json:"range"`
	Points []PricePoint `json:"points"`
}

// InstrumentChange is the move between an instrument's last two closes.
type InstrumentChange struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Close         float64   `json:"close"`
	PrevClose     float64   `json:"prev_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
}

// MarketStats summarises the latest session across the universe.
type MarketStats struct {
	Total     int                `json:"total"`
	Gainers   int                `json:"gainers"`
	Losers    int                `json:"losers"`
	Unchanged int                `json:"unchanged"`
	TopGainer *InstrumentChange  `json:"top_gainer,omitempty"`
	TopLoser  *InstrumentChange  `json:"top_loser,omitempty"`
	Changes   []InstrumentChange `json:"changes"`
}
