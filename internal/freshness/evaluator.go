// Package freshness classifies how current an indicator's latest observation
// is against a frequency-specific age policy, and selects the latest usable
// observation with frequency-aware acceptance rules.
package freshness

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/domain"
)

// policies is the maximum acceptable age of the latest observation, in days,
// per reporting frequency. Annual series fall back to
// the quarterly policy scaled to a year.
var policies = map[domain.Frequency]int{
	domain.FrequencyDaily:     7,
	domain.FrequencyWeekly:    21,
	domain.FrequencyMonthly:   75,
	domain.FrequencyQuarterly: 140,
	domain.FrequencyAnnual:    400,
}

const defaultMaxAgeDays = 140

// MaxAgeDays returns the policy for a frequency, falling back to the
// quarterly limit for unknown frequencies.
func MaxAgeDays(f domain.Frequency) int {
	if d, ok := policies[f]; ok {
		return d
	}
	return defaultMaxAgeDays
}

// Evaluator selects and classifies the latest available observation of a
// series. The clock is injectable for tests.
type Evaluator struct {
	now func() time.Time
	log zerolog.Logger
}

// NewEvaluator creates a freshness evaluator.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{
		now: time.Now,
		log: log.With().Str("component", "freshness").Logger(),
	}
}

// SetNow overrides the clock. Used by tests.
func (e *Evaluator) SetNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Latest returns the latest available value of the series together with its
// freshness classification, or nil when the series has no usable observation.
// Future-dated observations are always rejected.
func (e *Evaluator) Latest(s *domain.TimeSeries) *domain.LatestAvailableValue {
	if s.IsEmpty() {
		return nil
	}

	today := e.now().UTC()
	todayStr := today.Format(domain.DateFormat)

	for i := len(s.Points) - 1; i >= 0; i-- {
		p := s.Points[i]
		if p.Value == nil {
			continue
		}
		if p.Date > todayStr {
			e.log.Debug().
				Str("series", s.ID).
				Str("date", p.Date).
				Msg("Rejecting future-dated observation")
			continue
		}
		obsDate, err := time.Parse(domain.DateFormat, p.Date)
		if err != nil {
			continue
		}

		ageDays := int(today.Sub(obsDate).Hours() / 24)
		return &domain.LatestAvailableValue{
			Observation:      *p.Value,
			LastDate:         p.Date,
			AgeDays:          ageDays,
			FreshnessStatus:  Status(ageDays, MaxAgeDays(s.Frequency)),
			InExpectedPeriod: withinExpectedPeriod(s.Frequency, obsDate, today),
		}
	}
	return nil
}

// Status classifies an observation age against a policy limit:
// fresh below half the limit, stale below the limit, old beyond it.
func Status(ageDays, maxAgeDays int) domain.FreshnessStatus {
	if maxAgeDays <= 0 {
		return domain.FreshnessOld
	}
	ratio := float64(ageDays) / float64(maxAgeDays)
	switch {
	case ratio < 0.5:
		return domain.FreshnessFresh
	case ratio < 1.0:
		return domain.FreshnessStale
	default:
		return domain.FreshnessOld
	}
}

// withinExpectedPeriod reports whether the observation falls in the current
// or immediately prior reporting period for its frequency. A monthly value
// dated on the 1st represents its whole month - a convention of the primary
// statistics provider for survey-style indicators, not a documented contract.
func withinExpectedPeriod(f domain.Frequency, obs, today time.Time) bool {
	switch f {
	case domain.FrequencyMonthly:
		cur := monthIndex(today)
		return monthIndex(obs) >= cur-1
	case domain.FrequencyQuarterly:
		cur := quarterIndex(today)
		return quarterIndex(obs) >= cur-1
	case domain.FrequencyWeekly:
		return today.Sub(obs).Hours()/24 <= 14
	case domain.FrequencyDaily:
		return today.Sub(obs).Hours()/24 <= 7
	case domain.FrequencyAnnual:
		return obs.Year() >= today.Year()-1
	default:
		return true
	}
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func quarterIndex(t time.Time) int {
	return t.Year()*4 + (int(t.Month())-1)/3
}
