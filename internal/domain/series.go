// Package domain contains the core types shared across the MacroScope engine:
// time series, provider attempts, resolver results and the provider adapter
// contract. The domain layer is pure - no infrastructure dependencies.
package domain

import (
	"math"
	"sort"
	"time"
)

// Frequency is the reporting frequency of an indicator series.
type Frequency string

const (
	FrequencyDaily     Frequency = "D"
	FrequencyWeekly    Frequency = "W"
	FrequencyMonthly   Frequency = "M"
	FrequencyQuarterly Frequency = "Q"
	FrequencyAnnual    Frequency = "A"
)

// DateFormat is the canonical ISO date layout used for observation dates.
const DateFormat = "2006-01-02"

// Point is a single dated observation. Value is nil for missing observations
// (providers report gaps explicitly); stored values are always finite.
type Point struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// TimeSeries is one indicator's series as resolved from a single provider.
// Invariants: Points are strictly ascending by date with at most one point per
// date, and values are finite or nil - never NaN/Inf.
type TimeSeries struct {
	ID          string    `json:"id"`
	SourceName  string    `json:"source_name"`
	NativeID    string    `json:"native_id"`
	Name        string    `json:"name"`
	Frequency   Frequency `json:"frequency"`
	Unit        string    `json:"unit,omitempty"`
	Points      []Point   `json:"points"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Float returns a pointer to v, for building Points inline.
func Float(v float64) *float64 {
	return &v
}

// Normalize sorts points by date, deduplicates (later point wins) and drops
// non-finite values. Providers occasionally send duplicate or unordered rows;
// ingest runs every raw series through this before anything else touches it.
func (s *TimeSeries) Normalize() {
	byDate := make(map[string]Point, len(s.Points))
	dates := make([]string, 0, len(s.Points))
	for _, p := range s.Points {
		if p.Value != nil && (math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0)) {
			p.Value = nil
		}
		if _, seen := byDate[p.Date]; !seen {
			dates = append(dates, p.Date)
		}
		byDate[p.Date] = p
	}
	sort.Strings(dates)

	out := make([]Point, 0, len(dates))
	for _, d := range dates {
		out = append(out, byDate[d])
	}
	s.Points = out
}

// IsEmpty reports whether the series carries no observations at all.
func (s *TimeSeries) IsEmpty() bool {
	return s == nil || len(s.Points) == 0
}

// LatestPoint returns the most recent observation with a non-nil value,
// or nil if the series has none.
func (s *TimeSeries) LatestPoint() *Point {
	if s == nil {
		return nil
	}
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Value != nil {
			p := s.Points[i]
			return &p
		}
	}
	return nil
}

// DateRange bounds a fetch request. Zero values mean "unbounded".
type DateRange struct {
	Start time.Time
	End   time.Time
}
