package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macroscope/internal/domain"
)

func seriesOf(points ...domain.Point) *domain.TimeSeries {
	return &domain.TimeSeries{Points: points}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateFormat, s)
	require.NoError(t, err)
	return d
}

func TestAlignExactDates(t *testing.T) {
	a := seriesOf(
		domain.Point{Date: "2024-01-01", Value: domain.Float(1)},
		domain.Point{Date: "2024-01-02", Value: domain.Float(2)},
	)
	b := seriesOf(
		domain.Point{Date: "2024-01-01", Value: domain.Float(10)},
		domain.Point{Date: "2024-01-02", Value: domain.Float(20)},
	)

	got := Align(a, b, AlignOptions{Today: day(t, "2024-01-10")})
	require.Len(t, got, 2)
	assert.Equal(t, AlignedPoint{Date: "2024-01-01", Value1: 1, Value2: 10}, got[0])
	assert.Equal(t, AlignedPoint{Date: "2024-01-02", Value1: 2, Value2: 20}, got[1])
}

func TestAlignForwardFillWithinBound(t *testing.T) {
	// b's Friday value covers the weekend gap up to 3 days.
	a := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(1)},
		domain.Point{Date: "2024-01-08", Value: domain.Float(2)},
	)
	b := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(100)},
	)

	got := Align(a, b, AlignOptions{Today: day(t, "2024-01-10")})
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-08", got[1].Date)
	assert.Equal(t, 100.0, got[1].Value2) // filled forward 3 days
}

func TestAlignForwardFillBeyondBoundExcluded(t *testing.T) {
	a := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(1)},
		domain.Point{Date: "2024-01-09", Value: domain.Float(2)},
	)
	b := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(100)},
	)

	got := Align(a, b, AlignOptions{Today: day(t, "2024-01-10")})
	// 2024-01-09 is 4 days after b's last value: beyond the fill bound.
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-05", got[0].Date)
}

func TestAlignExcludesFutureDates(t *testing.T) {
	a := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(1)},
		domain.Point{Date: "2024-02-01", Value: domain.Float(2)},
	)
	b := seriesOf(
		domain.Point{Date: "2024-01-05", Value: domain.Float(9)},
		domain.Point{Date: "2024-02-01", Value: domain.Float(8)},
	)

	got := Align(a, b, AlignOptions{Today: day(t, "2024-01-10")})
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-05", got[0].Date)
}

func TestAlignSkipsNilValues(t *testing.T) {
	a := seriesOf(
		domain.Point{Date: "2024-01-01", Value: nil},
		domain.Point{Date: "2024-01-02", Value: domain.Float(2)},
	)
	b := seriesOf(
		domain.Point{Date: "2024-01-01", Value: domain.Float(1)},
		domain.Point{Date: "2024-01-02", Value: domain.Float(3)},
	)

	got := Align(a, b, AlignOptions{Today: day(t, "2024-01-10")})
	// 2024-01-01 has no usable value in a and nothing earlier to fill from.
	require.Len(t, got, 1)
	assert.Equal(t, AlignedPoint{Date: "2024-01-02", Value1: 2, Value2: 3}, got[0])
}

func TestAlignEmptySeries(t *testing.T) {
	a := seriesOf()
	b := seriesOf(domain.Point{Date: "2024-01-01", Value: domain.Float(1)})
	assert.Nil(t, Align(a, b, AlignOptions{Today: day(t, "2024-01-10")}))
}

func TestLogReturns(t *testing.T) {
	dates := []string{"d1", "d2", "d3"}
	values := []float64{100, 110, 121}

	got := LogReturns(dates, values)
	require.Len(t, got, 2)
	assert.InDelta(t, math.Log(1.1), got["d2"], 1e-12)
	assert.InDelta(t, math.Log(1.1), got["d3"], 1e-12)
}

func TestLogReturnsDropsNonPositive(t *testing.T) {
	dates := []string{"d1", "d2", "d3", "d4"}
	values := []float64{100, -5, 110, 121}

	got := LogReturns(dates, values)
	// d2 is invalid and also resets the chain, so d3 has no prior.
	require.Len(t, got, 1)
	assert.InDelta(t, math.Log(1.1), got["d4"], 1e-12)
}
