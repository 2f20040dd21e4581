package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(start int, closes ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		// intraday timestamps collapse onto the calendar day
		out[i] = models.PricePoint{Date: day(start + i).Add(14*time.Hour + 30*time.Minute), Close: c}
	}
	return out
}

func TestBuildPriceTableAlignsOnUnionOfDates(t *testing.T) {
	raw := models.RawSeries{
		"B": points(1, 20, 21, 22),
		"A": points(0, 10, 11, 12),
		"C": nil,
	}

	tbl, report, err := BuildPriceTable(raw, models.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, tbl.Symbols)
	assert.Equal(t, []time.Time{day(0), day(1), day(2), day(3)}, tbl.Dates)
	assert.Equal(t, []float64{10, 11, 12}, tbl.Cols[0][:3])
	assert.True(t, math.IsNaN(tbl.Cols[0][3]))
	assert.True(t, math.IsNaN(tbl.Cols[1][0]))
	assert.Equal(t, []float64{20, 21, 22}, tbl.Cols[1][1:])

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "C", report.Skipped[0].Symbol)
}

func TestBuildPriceTableDropsUnusableCloses(t *testing.T) {
	raw := models.RawSeries{
		"A": points(0, 10, 0, math.Inf(1), 13),
		"B": points(0, 5, 6, 7, -1),
	}
	tbl, _, err := BuildPriceTable(raw, models.DateRange{})
	require.NoError(t, err)

	require.Equal(t, 4, tbl.Rows())
	assert.True(t, math.IsNaN(tbl.Cols[0][1]))
	assert.True(t, math.IsNaN(tbl.Cols[0][2]))
	assert.True(t, math.IsNaN(tbl.Cols[1][3]))
}

func TestBuildPriceTableBounds(t *testing.T) {
	raw := models.RawSeries{"A": points(0, 1, 2, 3, 4, 5)}
	tbl, _, err := BuildPriceTable(raw, models.DateRange{Start: day(1), End: day(3)})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, tbl.Cols[0])
}

func TestBuildPriceTableNoData(t *testing.T) {
	_, report, err := BuildPriceTable(models.RawSeries{"A": nil, "B": {}}, models.DateRange{})
	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Len(t, report.Skipped, 2)

	_, _, err = BuildPriceTable(models.RawSeries{}, models.DateRange{})
	assert.True(t, errors.As(err, &ide))
}

func TestComputeLogReturns(t *testing.T) {
	prices := table([]string{"A", "B"},
		[]float64{10, 11, nan, 12.1},
		[]float64{20, 22, 24.2, nan},
	)
	ret := ComputeLogReturns(prices)

	require.Equal(t, []time.Time{day(1), day(2)}, ret.Dates)
	assert.InDelta(t, math.Log(1.1), ret.Cols[0][0], 1e-12)
	assert.True(t, math.IsNaN(ret.Cols[0][1]))
	assert.InDelta(t, math.Log(1.1), ret.Cols[1][0], 1e-12)
	assert.InDelta(t, math.Log(1.1), ret.Cols[1][1], 1e-12)
}

func TestComputeLogReturnsShortTable(t *testing.T) {
	ret := ComputeLogReturns(table([]string{"A"}, []float64{10}))
	assert.Equal(t, 0, ret.Rows())
	assert.Equal(t, []string{"A"}, ret.Symbols)
	assert.Empty(t, ret.Cols[0])
}
