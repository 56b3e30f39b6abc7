package correlation

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macroscope/internal/domain"
)

// dailySeries builds n consecutive daily observations ending at end, with
// values produced by f(i) for i = 0..n-1 in chronological order.
func dailySeries(end time.Time, n int, f func(i int) float64) *domain.TimeSeries {
	s := &domain.TimeSeries{}
	for i := 0; i < n; i++ {
		d := end.AddDate(0, 0, -(n - 1 - i))
		s.Points = append(s.Points, domain.Point{
			Date:  d.Format(domain.DateFormat),
			Value: domain.Float(f(i)),
		})
	}
	return s
}

func fixedNow(end time.Time) func() time.Time {
	return func() time.Time { return end }
}

func TestComputePerfectlyCorrelated(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	// Two geometric walks with proportional returns correlate at exactly 1.
	asset := dailySeries(end, 300, func(i int) float64 {
		return 100 * math.Pow(1.001, float64(i)) * (1 + 0.01*math.Sin(float64(i)))
	})
	base := dailySeries(end, 300, func(i int) float64 {
		return 50 * math.Pow(1.001, float64(i)) * (1 + 0.01*math.Sin(float64(i)))
	})

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	require.NotNil(t, res.Correlation)
	assert.InDelta(t, 1.0, *res.Correlation, 1e-9)
	assert.GreaterOrEqual(t, res.NObservations, 150)
	assert.Equal(t, end.Format(domain.DateFormat), res.LastAssetDate)
}

func TestComputeResultWithinBounds(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	asset := dailySeries(end, 300, func(i int) float64 {
		return 100 + 10*math.Sin(float64(i)*0.7) + float64(i)*0.05
	})
	base := dailySeries(end, 300, func(i int) float64 {
		return 200 + 5*math.Cos(float64(i)*1.3) + float64(i)*0.02
	})

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	require.NotNil(t, res.Correlation)
	assert.GreaterOrEqual(t, *res.Correlation, -1.0)
	assert.LessOrEqual(t, *res.Correlation, 1.0)
}

func TestComputeInsufficientHistory(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	asset := dailySeries(end, 100, func(i int) float64 { return 100 + float64(i) })
	base := dailySeries(end, 100, func(i int) float64 { return 50 + float64(i) })

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	assert.Nil(t, res.Correlation)
	assert.Equal(t, 100, res.NObservations)
}

func TestComputeZeroOverlap(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	asset := dailySeries(end, 300, func(i int) float64 { return 100 + float64(i) })
	base := dailySeries(end.AddDate(-3, 0, 0), 300, func(i int) float64 { return 50 + float64(i) })

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	assert.Nil(t, res.Correlation)
	assert.Equal(t, 0, res.NObservations)
}

func TestComputeStalenessGate(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	// Both series end 30 days before "now": alignment too stale.
	seriesEnd := end.AddDate(0, 0, -30)
	asset := dailySeries(seriesEnd, 300, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) })
	base := dailySeries(seriesEnd, 300, func(i int) float64 { return 50 * math.Pow(1.001, float64(i)) })

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	assert.Nil(t, res.Correlation)
}

func TestComputeTooFewOverlappingReturns(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	asset := dailySeries(end, 300, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) })
	// Negative values discard the base's returns wholesale.
	base := dailySeries(end, 300, func(i int) float64 { return -1 })

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))
	res := e.Compute(asset, base, 252, 0)

	assert.Nil(t, res.Correlation)
	assert.Equal(t, 0, res.NObservations)
}

func TestComputeNamedWindows(t *testing.T) {
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	asset := dailySeries(end, 300, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) })
	base := dailySeries(end, 300, func(i int) float64 { return 50 * math.Pow(1.002, float64(i)) })

	e := NewEngine(zerolog.Nop(), WithNow(fixedNow(end)))

	_, ok := e.ComputeNamed(asset, base, "12m")
	assert.True(t, ok)
	_, ok = e.ComputeNamed(asset, base, "3m")
	assert.True(t, ok)
	_, ok = e.ComputeNamed(asset, base, "48m")
	assert.False(t, ok)
}

func TestWinsorizeBoundsOutliers(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	values[999] = 1e9 // extreme outlier

	winsorize(values, 0.01, 0.99)

	max, min := values[0], values[0]
	for _, v := range values {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	// Clamped to the empirical 1st/99th percentile values of the sample.
	assert.LessOrEqual(t, max, 990.0+1e-9)
	assert.GreaterOrEqual(t, min, 10.0-1e-9)
	// Values inside the bounds are untouched.
	assert.Equal(t, 500.0, values[500])
}
