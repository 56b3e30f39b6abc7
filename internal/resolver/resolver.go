// Package resolver orchestrates the fallback chain that resolves one
// indicator from a priority-ordered list of data providers. Provider-level
// failures are always absorbed and classified into the returned
// ResolverResult - they never surface as errors to the caller.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
	"github.com/aristath/macroscope/internal/series"
)

// Resolver resolves indicators by trying configured providers strictly in
// priority order, stopping at the first provider that returns a non-empty
// series. Each resolution call owns its own attempt list; there is no shared
// mutable state between concurrent resolutions.
type Resolver struct {
	adapters map[string]domain.ProviderAdapter
	log      zerolog.Logger
}

// New creates a resolver over a statically declared set of provider adapters.
func New(adapters []domain.ProviderAdapter, log zerolog.Logger) *Resolver {
	byName := make(map[string]domain.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Resolver{
		adapters: byName,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve attempts each source of the indicator in order and returns either
// the first non-empty series or an aggregated, classified failure.
func (r *Resolver) Resolve(ctx context.Context, ind domain.IndicatorSpec, avail domain.Availability) *domain.ResolverResult {
	result := &domain.ResolverResult{
		Attempts: make([]domain.SourceAttempt, 0, len(ind.Sources)),
	}

	for _, src := range ind.Sources {
		adapter, ok := r.adapters[src.Provider]
		if !ok {
			// Unknown provider name in the indicator catalog.
			result.Attempts = append(result.Attempts, domain.SourceAttempt{
				Source:    src.Provider,
				Attempted: false,
				Reason:    domain.ReasonMisconfig,
				Error:     "no adapter registered for provider",
			})
			continue
		}

		if err := adapter.ValidateID(src.NativeID); err != nil {
			// Invalid identifier: never issue a network call.
			r.log.Warn().
				Str("indicator", ind.Key).
				Str("provider", src.Provider).
				Str("native_id", src.NativeID).
				Err(err).
				Msg("Invalid provider identifier, skipping")
			result.Attempts = append(result.Attempts, domain.SourceAttempt{
				Source:    src.Provider,
				Attempted: false,
				Reason:    domain.ReasonMisconfig,
				Error:     err.Error(),
			})
			continue
		}

		if !avail.Enabled(src.Provider) {
			result.Attempts = append(result.Attempts, domain.SourceAttempt{
				Source:    src.Provider,
				Attempted: false,
				Reason:    domain.ReasonSourceDisabled,
			})
			continue
		}

		s, err := adapter.FetchSeries(ctx, src.NativeID, defaultRange(ind.Frequency))
		if err != nil {
			attempt := domain.SourceAttempt{
				Source:    src.Provider,
				Attempted: true,
				Reason:    "fetch failed",
				Error:     err.Error(),
			}
			var ferr *fetch.Error
			if errors.As(err, &ferr) {
				attempt.HTTPStatus = ferr.Status
				if errors.Is(ferr.Err, fetch.ErrNoData) {
					attempt.Reason = domain.ReasonNoData
				}
			}
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		if s.IsEmpty() {
			// Empty-but-successful payload: a soft failure, not an outage.
			result.Attempts = append(result.Attempts, domain.SourceAttempt{
				Source:    src.Provider,
				Attempted: true,
				Reason:    domain.ReasonNoData,
			})
			continue
		}

		s.Normalize()
		if ind.Transform != domain.TransformNone {
			// The derived series replaces the raw one; the transform itself
			// is visible to callers only through the values.
			r.log.Info().
				Str("indicator", ind.Key).
				Str("provider", src.Provider).
				Str("transform", string(ind.Transform)).
				Msg("Applying level-series transform")
			s = series.Derive(s, ind.Transform)
		}
		if ind.Name != "" {
			s.Name = ind.Name
		}
		s.ID = ind.Key
		s.Frequency = ind.Frequency
		if s.Unit == "" {
			s.Unit = ind.Unit
		}

		result.Attempts = append(result.Attempts, domain.SourceAttempt{
			Source:    src.Provider,
			Attempted: true,
			Reason:    "ok",
		})
		result.Success = true
		result.Series = s
		result.SourceUsed = src.Provider

		r.log.Info().
			Str("indicator", ind.Key).
			Str("source", src.Provider).
			Int("points", len(s.Points)).
			Msg("Indicator resolved")
		return result
	}

	result.ErrorType = classifyFailure(result.Attempts)
	result.Error = "no provider yielded data"
	r.log.Warn().
		Str("indicator", ind.Key).
		Str("error_type", result.ErrorType).
		Int("attempts", len(result.Attempts)).
		Msg("Resolution failed")
	return result
}

// classifyFailure derives the aggregate error type from the attempt list.
// The precedence order is deliberate: configuration problems outrank
// transient provider problems, which outrank legitimately empty responses.
func classifyFailure(attempts []domain.SourceAttempt) string {
	if len(attempts) == 0 {
		return domain.ErrTypeNoDataSource
	}

	var anyRateLimit, anyServerErr, anyNoData, anyBlocked bool
	attempted := 0
	notAvailable := 0

	for _, a := range attempts {
		if !a.Attempted {
			if a.Reason == domain.ReasonMisconfig {
				return domain.ErrTypeMisconfig
			}
			continue
		}
		attempted++
		switch {
		case a.HTTPStatus == 409 || a.HTTPStatus == 429:
			anyRateLimit = true
		case a.HTTPStatus >= 500:
			anyServerErr = true
		case a.HTTPStatus == 403:
			anyBlocked = true
		}
		if a.Reason == domain.ReasonNoData {
			anyNoData = true
		}
		if a.HTTPStatus == 404 || a.HTTPStatus == 400 {
			notAvailable++
		}
	}

	switch {
	case anyRateLimit:
		return domain.ErrTypeRateLimited
	case anyServerErr:
		return domain.ErrTypeSourceDown
	case anyNoData:
		return domain.ErrTypeNoData
	case anyBlocked:
		return domain.ErrTypeBlocked
	case attempted > 0 && notAvailable == attempted:
		return domain.ErrTypeNotAvailable
	default:
		return domain.ErrTypeNoDataSource
	}
}

// defaultRange picks a fetch window generous enough for the transforms and
// correlation windows downstream: higher-frequency series need less calendar
// time, annual series need decades.
func defaultRange(f domain.Frequency) domain.DateRange {
	years := 3
	switch f {
	case domain.FrequencyMonthly:
		years = 6
	case domain.FrequencyQuarterly:
		years = 10
	case domain.FrequencyAnnual:
		years = 30
	}
	now := time.Now().UTC()
	return domain.DateRange{Start: now.AddDate(-years, 0, 0), End: now}
}
