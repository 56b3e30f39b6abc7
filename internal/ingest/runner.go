// Package ingest drives the periodic batch that resolves every cataloged
// indicator through the provider fallback chain, persists the results, and
// refreshes the correlation matrix. One failed indicator never aborts the
// batch; failures are counted and classified in the run summary.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/macroscope/internal/correlation"
	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/freshness"
	"github.com/aristath/macroscope/internal/resolver"
	"github.com/aristath/macroscope/internal/store"
)

// Runner executes batch ingest runs.
type Runner struct {
	resolver *resolver.Resolver
	series   *store.SeriesRepository
	runs     *store.RunRepository
	corrs    *store.CorrelationRepository
	payloads *store.PayloadRepository
	engine   *correlation.Engine
	fresh    *freshness.Evaluator

	catalog     []domain.IndicatorSpec
	pairs       []Pair
	avail       domain.Availability
	budget      time.Duration
	concurrency int

	now func() time.Time
	log zerolog.Logger
}

// Options configures a Runner.
type Options struct {
	Catalog     []domain.IndicatorSpec
	Pairs       []Pair
	Avail       domain.Availability
	Budget      time.Duration
	Concurrency int
}

// NewRunner creates a batch runner.
func NewRunner(
	res *resolver.Resolver,
	series *store.SeriesRepository,
	runs *store.RunRepository,
	corrs *store.CorrelationRepository,
	payloads *store.PayloadRepository,
	engine *correlation.Engine,
	fresh *freshness.Evaluator,
	opts Options,
	log zerolog.Logger,
) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Budget <= 0 {
		opts.Budget = 240 * time.Second
	}
	return &Runner{
		resolver:    res,
		series:      series,
		runs:        runs,
		corrs:       corrs,
		payloads:    payloads,
		engine:      engine,
		fresh:       fresh,
		catalog:     opts.Catalog,
		pairs:       opts.Pairs,
		avail:       opts.Avail,
		budget:      opts.Budget,
		concurrency: opts.Concurrency,
		now:         time.Now,
		log:         log.With().Str("component", "ingest").Logger(),
	}
}

// Run executes one batch: resolve indicators from the saved cursor position
// under the wall-clock budget, then refresh correlations from whatever is in
// the store. Returns the persisted run summary.
func (r *Runner) Run(ctx context.Context) (store.RunSummary, error) {
	runID := uuid.New().String()
	deadline := r.now().Add(r.budget)

	startPos, err := r.runs.Cursor()
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to load cursor, starting from zero")
		startPos = 0
	}
	if startPos >= len(r.catalog) {
		startPos = 0
	}
	if err := r.runs.StartRun(runID, len(r.catalog)); err != nil {
		return store.RunSummary{}, err
	}

	r.log.Info().
		Str("run_id", runID).
		Int("indicators", len(r.catalog)).
		Int("start_position", startPos).
		Dur("budget", r.budget).
		Msg("Starting batch run")

	summary := store.RunSummary{
		ID:          runID,
		Total:       len(r.catalog),
		ErrorCounts: map[string]int{},
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	// First catalog position that was skipped over the deadline. g.Go blocks
	// on a free worker slot, so the deadline is re-checked inside each
	// goroutine too; the cursor must resume from the earliest skipped index.
	resumeFrom := -1
	markSkipped := func(i int) {
		mu.Lock()
		summary.BudgetExhausted = true
		if resumeFrom == -1 || i < resumeFrom {
			resumeFrom = i
		}
		mu.Unlock()
	}

	for i := startPos; i < len(r.catalog); i++ {
		if r.now().After(deadline) || ctx.Err() != nil {
			markSkipped(i)
			break
		}

		ind := r.catalog[i]
		g.Go(func() error {
			if r.now().After(deadline) || ctx.Err() != nil {
				markSkipped(i)
				return nil
			}
			ok := r.resolveOne(ctx, ind, &mu, &summary)
			mu.Lock()
			if ok {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if summary.BudgetExhausted {
		if err := r.runs.SaveCursor(resumeFrom, runID); err != nil {
			r.log.Error().Err(err).Msg("Failed to save cursor")
		}
		r.log.Warn().
			Str("run_id", runID).
			Int("position", resumeFrom).
			Msg("Budget exhausted, cursor saved for resume")
	} else {
		if err := r.runs.ClearCursor(); err != nil {
			r.log.Error().Err(err).Msg("Failed to clear cursor")
		}
	}

	r.refreshCorrelations()

	if err := r.runs.FinishRun(summary); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist run summary")
	}
	r.log.Info().
		Str("run_id", runID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Bool("budget_exhausted", summary.BudgetExhausted).
		Msg("Batch run finished")
	return summary, nil
}

// resolveOne resolves and persists a single indicator, logging its freshness.
// Reports whether the indicator resolved successfully.
func (r *Runner) resolveOne(ctx context.Context, ind domain.IndicatorSpec, mu *sync.Mutex, summary *store.RunSummary) bool {
	result := r.resolver.Resolve(ctx, ind, r.avail)
	if !result.Success {
		mu.Lock()
		summary.ErrorCounts[result.ErrorType]++
		mu.Unlock()
		r.restoreSnapshot(ind)
		if err := r.series.SaveFailed(ind, result.ErrorType, result.Error); err != nil {
			r.log.Error().Err(err).Str("indicator", ind.Key).Msg("Failed to persist failure state")
		}
		return false
	}

	if err := r.series.SaveResolved(ind.Key, result.SourceUsed, result.Series); err != nil {
		r.log.Error().Err(err).Str("indicator", ind.Key).Msg("Failed to persist series")
		mu.Lock()
		summary.ErrorCounts["persist_failed"]++
		mu.Unlock()
		return false
	}

	r.cacheSnapshot(ind.Key, result)

	if latest := r.fresh.Latest(result.Series); latest != nil {
		r.log.Info().
			Str("indicator", ind.Key).
			Str("last_date", latest.LastDate).
			Int("age_days", latest.AgeDays).
			Str("freshness", string(latest.FreshnessStatus)).
			Msg("Indicator ingested")
	}
	return true
}

// cacheSnapshot stores the resolved series in the payload cache keyed by
// indicator, so a provider outage in the next batch can fall back to the
// last good snapshot.
func (r *Runner) cacheSnapshot(key string, result *domain.ResolverResult) {
	if r.payloads == nil {
		return
	}
	table := result.SourceUsed + "_payloads"
	ttl := store.TTLFredPayload
	switch result.SourceUsed {
	case "dbnomics":
		ttl = store.TTLDBnomicsPayload
	case "tradingecon":
		ttl = store.TTLTradingEconPayload
	}
	if err := r.payloads.Store(table, key, result.Series, ttl); err != nil {
		r.log.Warn().Err(err).Str("indicator", key).Msg("Failed to cache series snapshot")
	}
}

// restoreSnapshot repopulates observations from the last cached payload when
// every provider failed and the store has nothing for the indicator. Stale
// data with a recorded failure state beats an empty series. Expired snapshots
// are accepted; the TTL only governs cache cleanup.
func (r *Runner) restoreSnapshot(ind domain.IndicatorSpec) {
	if r.payloads == nil {
		return
	}
	stored, err := r.series.GetSeries(ind.Key)
	if err != nil || stored != nil {
		return
	}

	for _, src := range ind.Sources {
		var snap domain.TimeSeries
		ok, err := r.payloads.Get(src.Provider+"_payloads", ind.Key, &snap)
		if err != nil || !ok || snap.IsEmpty() {
			continue
		}
		if err := r.series.SaveResolved(ind.Key, src.Provider, &snap); err != nil {
			r.log.Error().Err(err).Str("indicator", ind.Key).Msg("Failed to restore snapshot")
			return
		}
		r.log.Warn().
			Str("indicator", ind.Key).
			Str("provider", src.Provider).
			Int("points", len(snap.Points)).
			Msg("All providers failed, restored last good snapshot")
		return
	}
}

// refreshCorrelations recomputes every configured pair for every window,
// reading series from the store so a budget-truncated run still refreshes
// from the last known data.
func (r *Runner) refreshCorrelations() {
	for _, pair := range r.pairs {
		asset, err := r.series.GetSeries(pair.AssetKey)
		if err != nil || asset == nil {
			r.log.Debug().Str("asset", pair.AssetKey).Msg("No stored series for correlation")
			continue
		}
		base, err := r.series.GetSeries(pair.BaseKey)
		if err != nil || base == nil {
			r.log.Debug().Str("base", pair.BaseKey).Msg("No stored series for correlation")
			continue
		}

		for window := range correlation.DefaultWindows {
			res, ok := r.engine.ComputeNamed(asset, base, window)
			if !ok {
				continue
			}
			if err := r.corrs.Save(pair.AssetKey, pair.BaseKey, window, res); err != nil {
				r.log.Error().Err(err).
					Str("asset", pair.AssetKey).
					Str("base", pair.BaseKey).
					Str("window", window).
					Msg("Failed to persist correlation")
			}
		}
	}
}
