package ingest

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/aristath/macroscope/internal/domain"
)

// RatedAdapter wraps a provider adapter with a client-side rate limiter so
// concurrent resolutions never hammer one provider, whatever the batch
// concurrency is set to.
type RatedAdapter struct {
	domain.ProviderAdapter
	limiter *rate.Limiter
}

// NewRatedAdapter wraps an adapter with a minimum spacing between calls.
func NewRatedAdapter(adapter domain.ProviderAdapter, spacing rate.Limit) *RatedAdapter {
	return &RatedAdapter{
		ProviderAdapter: adapter,
		limiter:         rate.NewLimiter(spacing, 1),
	}
}

// FetchSeries waits for a rate token, then delegates to the wrapped adapter.
func (a *RatedAdapter) FetchSeries(ctx context.Context, nativeID string, rng domain.DateRange) (*domain.TimeSeries, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return a.ProviderAdapter.FetchSeries(ctx, nativeID, rng)
}
