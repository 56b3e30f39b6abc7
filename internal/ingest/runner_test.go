package ingest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macroscope/internal/correlation"
	"github.com/aristath/macroscope/internal/database"
	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
	"github.com/aristath/macroscope/internal/freshness"
	"github.com/aristath/macroscope/internal/resolver"
	"github.com/aristath/macroscope/internal/store"
)

type fakeAdapter struct {
	name       string
	series     *domain.TimeSeries
	fetchErr   error
	fetchCalls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) ValidateID(nativeID string) error { return nil }

func (f *fakeAdapter) FetchSeries(ctx context.Context, nativeID string, rng domain.DateRange) (*domain.TimeSeries, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.series, nil
}

type testEnv struct {
	macro    *sql.DB
	series   *store.SeriesRepository
	runs     *store.RunRepository
	corrs    *store.CorrelationRepository
	payloads *store.PayloadRepository
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()

	macroDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "macro.db"),
		Name: "macro",
	})
	require.NoError(t, err)
	require.NoError(t, macroDB.Migrate())
	t.Cleanup(func() { macroDB.Close() })

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, cacheDB.Migrate())
	t.Cleanup(func() { cacheDB.Close() })

	return testEnv{
		macro:    macroDB.Conn(),
		series:   store.NewSeriesRepository(macroDB.Conn()),
		runs:     store.NewRunRepository(macroDB.Conn()),
		corrs:    store.NewCorrelationRepository(macroDB.Conn()),
		payloads: store.NewPayloadRepository(cacheDB.Conn()),
	}
}

func newTestRunner(t *testing.T, env testEnv, adapters []domain.ProviderAdapter, opts Options) *Runner {
	t.Helper()
	res := resolver.New(adapters, zerolog.Nop())
	engine := correlation.NewEngine(zerolog.Nop())
	fresh := freshness.NewEvaluator(zerolog.Nop())
	return NewRunner(res, env.series, env.runs, env.corrs, env.payloads, engine, fresh, opts, zerolog.Nop())
}

func notFoundErr() error {
	return &fetch.Error{
		Class:  fetch.Classify(404, ""),
		Status: 404,
		Err:    errors.New("not found"),
	}
}

func TestRunPersistsSuccessesAndFailures(t *testing.T) {
	env := setupEnv(t)

	good := &fakeAdapter{name: "fred", series: &domain.TimeSeries{
		Points: []domain.Point{{Date: "2024-01-01", Value: domain.Float(3.1)}},
	}}
	bad := &fakeAdapter{name: "dbnomics", fetchErr: notFoundErr()}

	catalog := []domain.IndicatorSpec{
		{Key: "ok_indicator", Frequency: domain.FrequencyMonthly,
			Sources: []domain.SourceRef{{Provider: "fred", NativeID: "X"}}},
		{Key: "dead_indicator", Frequency: domain.FrequencyMonthly,
			Sources: []domain.SourceRef{{Provider: "dbnomics", NativeID: "Y"}}},
	}

	r := newTestRunner(t, env, []domain.ProviderAdapter{good, bad}, Options{Catalog: catalog})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.BudgetExhausted)
	assert.Equal(t, 1, summary.ErrorCounts[domain.ErrTypeNotAvailable])

	s, err := env.series.GetSeries("ok_indicator")
	require.NoError(t, err)
	require.NotNil(t, s)

	states, err := env.series.ListIndicators()
	require.NoError(t, err)
	require.Len(t, states, 2)

	// The resolved series is snapshotted into the provider's payload table.
	var snap domain.TimeSeries
	ok, err := env.payloads.GetIfFresh("fred_payloads", "ok_indicator", &snap)
	require.NoError(t, err)
	assert.True(t, ok)

	runs, err := env.runs.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.ID, runs[0].ID)
}

func TestRunBudgetExhaustionSavesCursor(t *testing.T) {
	env := setupEnv(t)

	good := &fakeAdapter{name: "fred", series: &domain.TimeSeries{
		Points: []domain.Point{{Date: "2024-01-01", Value: domain.Float(1)}},
	}}
	catalog := []domain.IndicatorSpec{
		{Key: "a", Sources: []domain.SourceRef{{Provider: "fred", NativeID: "A"}}},
		{Key: "b", Sources: []domain.SourceRef{{Provider: "fred", NativeID: "B"}}},
	}

	r := newTestRunner(t, env, []domain.ProviderAdapter{good}, Options{
		Catalog: catalog,
		Budget:  time.Nanosecond,
	})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.BudgetExhausted)

	pos, err := env.runs.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "nothing processed, resume from the start")

	// A run with a real budget resumes and clears the cursor.
	r2 := newTestRunner(t, env, []domain.ProviderAdapter{good}, Options{Catalog: catalog})
	summary2, err := r2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary2.Succeeded)
	assert.False(t, summary2.BudgetExhausted)

	pos, err = env.runs.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}

func TestRunRestoresSnapshotOnProviderOutage(t *testing.T) {
	env := setupEnv(t)

	adapter := &fakeAdapter{name: "fred", series: &domain.TimeSeries{
		SourceName: "fred",
		Points:     []domain.Point{{Date: "2024-01-01", Value: domain.Float(3.1)}},
	}}
	catalog := []domain.IndicatorSpec{
		{Key: "cpi", Frequency: domain.FrequencyMonthly,
			Sources: []domain.SourceRef{{Provider: "fred", NativeID: "X"}}},
	}

	// First run succeeds and leaves a snapshot in the payload cache.
	r := newTestRunner(t, env, []domain.ProviderAdapter{adapter}, Options{Catalog: catalog})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	// The datastore is rebuilt (restored host, wiped volume); only the
	// payload cache survives.
	_, err = env.macro.Exec("DELETE FROM observations")
	require.NoError(t, err)
	_, err = env.macro.Exec("DELETE FROM indicators")
	require.NoError(t, err)

	adapter.fetchErr = notFoundErr()
	summary2, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary2.Failed)

	// The snapshot was served despite the outage, with the failure recorded.
	s, err := env.series.GetSeries("cpi")
	require.NoError(t, err)
	require.NotNil(t, s, "last good snapshot must survive a provider outage")
	require.Len(t, s.Points, 1)
	assert.InDelta(t, 3.1, *s.Points[0].Value, 1e-9)

	states, err := env.series.ListIndicators()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, domain.ErrTypeNotAvailable, states[0].ErrorType)
}

func TestRunDeadlineRecheckedInWorker(t *testing.T) {
	env := setupEnv(t)

	adapter := &fakeAdapter{name: "fred", series: &domain.TimeSeries{
		Points: []domain.Point{{Date: "2024-01-01", Value: domain.Float(1)}},
	}}
	catalog := []domain.IndicatorSpec{
		{Key: "a", Sources: []domain.SourceRef{{Provider: "fred", NativeID: "A"}}},
	}
	r := newTestRunner(t, env, []domain.ProviderAdapter{adapter}, Options{Catalog: catalog})

	// The deadline passes between launching the worker and it getting a
	// slot: clock call 1 fixes the deadline, call 2 passes the loop check,
	// call 3 happens inside the worker and must see the deadline blown.
	base := time.Now()
	var calls int32
	r.now = func() time.Time {
		if atomic.AddInt32(&calls, 1) >= 3 {
			return base.Add(time.Hour)
		}
		return base
	}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, adapter.fetchCalls, "worker must not resolve past the deadline")
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, summary.BudgetExhausted)

	pos, err := env.runs.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "cursor must resume from the skipped indicator")
}

func TestRunRefreshesCorrelationsFromStore(t *testing.T) {
	env := setupEnv(t)

	// Stored series too short for any window: cells persist as nulls, so the
	// matrix shape is stable even before enough history accumulates.
	short := &domain.TimeSeries{Frequency: domain.FrequencyDaily}
	end := time.Now().UTC()
	for i := 29; i >= 0; i-- {
		short.Points = append(short.Points, domain.Point{
			Date:  end.AddDate(0, 0, -i).Format(domain.DateFormat),
			Value: domain.Float(100 + float64(i)),
		})
	}
	require.NoError(t, env.series.SaveResolved("sp500", "fred", short))
	require.NoError(t, env.series.SaveResolved("wti_crude", "fred", short))

	r := newTestRunner(t, env, nil, Options{
		Pairs: []Pair{{AssetKey: "sp500", BaseKey: "wti_crude"}},
	})
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	cells, err := env.corrs.List()
	require.NoError(t, err)
	require.Len(t, cells, 2, "one cell per named window")
	for _, c := range cells {
		assert.Nil(t, c.Correlation)
	}
}
