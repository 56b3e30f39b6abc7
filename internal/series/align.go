// Package series provides alignment and transformation utilities for
// date-indexed time series: bounded forward-fill alignment, log returns,
// and YoY/QoQ derivations from level series. All functions are pure and
// total - missing or invalid inputs yield nil values, never panics.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/macroscope/internal/domain"
)

// DefaultMaxForwardFillDays bounds how far a missing observation may be
// carried forward during alignment.
const DefaultMaxForwardFillDays = 3

// AlignedPoint is one date where both input series have a (possibly
// forward-filled) value. Exists only transiently during computation.
type AlignedPoint struct {
	Date   string
	Value1 float64
	Value2 float64
}

// AlignOptions configures Align. Today guards against provider clock skew:
// dates strictly after it are excluded. The zero value uses the defaults.
type AlignOptions struct {
	MaxForwardFillDays int
	Today              time.Time
}

// Align builds the ordered list of dates on which both series have a value,
// forward-filling gaps of at most MaxForwardFillDays calendar days.
func Align(a, b *domain.TimeSeries, opts AlignOptions) []AlignedPoint {
	if a.IsEmpty() || b.IsEmpty() {
		return nil
	}
	if opts.MaxForwardFillDays <= 0 {
		opts.MaxForwardFillDays = DefaultMaxForwardFillDays
	}
	if opts.Today.IsZero() {
		opts.Today = time.Now().UTC()
	}
	today := opts.Today.Format(domain.DateFormat)

	// Union of dates from both series, capped at today.
	dateSet := make(map[string]struct{}, len(a.Points)+len(b.Points))
	for _, p := range a.Points {
		if p.Date <= today {
			dateSet[p.Date] = struct{}{}
		}
	}
	for _, p := range b.Points {
		if p.Date <= today {
			dateSet[p.Date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	fa := filler(a, opts.MaxForwardFillDays)
	fb := filler(b, opts.MaxForwardFillDays)

	out := make([]AlignedPoint, 0, len(dates))
	for _, d := range dates {
		v1, ok1 := fa(d)
		v2, ok2 := fb(d)
		if ok1 && ok2 {
			out = append(out, AlignedPoint{Date: d, Value1: v1, Value2: v2})
		}
	}
	return out
}

// filler returns a lookup over the series with bounded forward-fill. It must
// be called with ascending dates (Align guarantees that).
func filler(s *domain.TimeSeries, maxFillDays int) func(date string) (float64, bool) {
	idx := 0
	var lastDate time.Time
	var lastValue float64
	haveLast := false

	return func(date string) (float64, bool) {
		d, err := time.Parse(domain.DateFormat, date)
		if err != nil {
			return 0, false
		}

		// Advance through all observations up to and including this date.
		for idx < len(s.Points) && s.Points[idx].Date <= date {
			p := s.Points[idx]
			idx++
			if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
				continue
			}
			pd, perr := time.Parse(domain.DateFormat, p.Date)
			if perr != nil {
				continue
			}
			lastDate = pd
			lastValue = *p.Value
			haveLast = true
		}

		if !haveLast {
			return 0, false
		}
		gap := int(d.Sub(lastDate).Hours() / 24)
		if gap < 0 || gap > maxFillDays {
			return 0, false
		}
		return lastValue, true
	}
}

// LogReturns computes ln(v_t / v_{t-1}) over consecutive aligned values,
// keyed by the date of v_t. Non-positive and non-finite inputs are discarded.
func LogReturns(dates []string, values []float64) map[string]float64 {
	out := make(map[string]float64)
	if len(dates) != len(values) {
		return out
	}

	prev := math.NaN()
	for i, v := range values {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			prev = math.NaN()
			continue
		}
		if !math.IsNaN(prev) {
			r := math.Log(v / prev)
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				out[dates[i]] = r
			}
		}
		prev = v
	}
	return out
}
