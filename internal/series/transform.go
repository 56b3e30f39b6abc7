package series

import (
	"math"
	"time"

	"github.com/aristath/macroscope/internal/domain"
)

// Lookback tolerances for level-series derivations. The year-over-year
// comparison accepts a prior observation within ±30 days of the 12-month
// anchor; the month-over-month comparison within ±15 days of the 1-month
// anchor. Irregular publication dates make exact anchors unrealistic.
const (
	yoyToleranceDays = 30
	qoqToleranceDays = 15
)

// YoY computes the year-over-year percentage change for the observation at
// date: (current/prior - 1) * 100, where prior is the observation closest to
// 12 months before date within the tolerance window. Returns nil when no
// usable prior exists or the prior is not a positive finite number.
func YoY(s *domain.TimeSeries, date string, current float64) *float64 {
	prior := observationNear(s, date, -1, 0, yoyToleranceDays)
	if prior == nil {
		return nil
	}
	return ratioChange(current, *prior)
}

// QoQDelta computes the absolute change against the observation ~1 month
// prior (±15 days). Survey-style indicators are compared as deltas, not
// ratios, since their levels can legitimately cross zero.
func QoQDelta(s *domain.TimeSeries, date string, current float64) *float64 {
	prior := observationNear(s, date, 0, -1, qoqToleranceDays)
	if prior == nil {
		return nil
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil
	}
	d := current - *prior
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return nil
	}
	return &d
}

// QoQRatio is the ratio-based variant of QoQDelta, for indicators whose
// config requests percentage changes.
func QoQRatio(s *domain.TimeSeries, date string, current float64) *float64 {
	prior := observationNear(s, date, 0, -1, qoqToleranceDays)
	if prior == nil {
		return nil
	}
	return ratioChange(current, *prior)
}

// Derive maps a level series through the requested transform, producing a new
// series with the same dates. Points whose derivation is undefined become
// nil-valued observations. TransformNone returns the input unchanged.
func Derive(s *domain.TimeSeries, t domain.TransformType) *domain.TimeSeries {
	if s == nil || t == domain.TransformNone {
		return s
	}

	out := *s
	out.Points = make([]domain.Point, 0, len(s.Points))
	for _, p := range s.Points {
		np := domain.Point{Date: p.Date}
		if p.Value != nil {
			switch t {
			case domain.TransformYoY:
				np.Value = YoY(s, p.Date, *p.Value)
			case domain.TransformQoQDelta:
				np.Value = QoQDelta(s, p.Date, *p.Value)
			case domain.TransformQoQRatio:
				np.Value = QoQRatio(s, p.Date, *p.Value)
			}
		}
		out.Points = append(out.Points, np)
	}
	return &out
}

// ratioChange returns (current/prior - 1) * 100, or nil when the inputs make
// the ratio meaningless.
func ratioChange(current, prior float64) *float64 {
	if prior <= 0 || math.IsNaN(prior) || math.IsInf(prior, 0) {
		return nil
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil
	}
	v := (current/prior - 1) * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// observationNear finds the value of the observation closest to
// date + years/months, accepting only candidates within toleranceDays.
func observationNear(s *domain.TimeSeries, date string, years, months, toleranceDays int) *float64 {
	if s.IsEmpty() {
		return nil
	}
	anchor, err := time.Parse(domain.DateFormat, date)
	if err != nil {
		return nil
	}
	target := anchor.AddDate(years, months, 0)

	var best *float64
	bestDist := toleranceDays + 1
	for i := range s.Points {
		p := s.Points[i]
		if p.Value == nil {
			continue
		}
		pd, perr := time.Parse(domain.DateFormat, p.Date)
		if perr != nil {
			continue
		}
		dist := int(math.Abs(pd.Sub(target).Hours() / 24))
		if dist < bestDist {
			bestDist = dist
			best = p.Value
		}
	}
	if best == nil || math.IsNaN(*best) || math.IsInf(*best, 0) {
		return nil
	}
	return best
}
