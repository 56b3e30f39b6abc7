// Package correlation computes rolling-window Pearson correlations between
// resolved series, with winsorized returns, a minimum-observation gate and a
// staleness gate. Results are always well-formed: a correlation is either a
// finite value in [-1, 1] or nil, never NaN/Inf, and data insufficiency is
// reported through the result, not an error.
package correlation

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/series"
)

// WindowConfig describes one named correlation window.
type WindowConfig struct {
	TradingDays     int `json:"trading_days"`
	MinObservations int `json:"min_observations"`
}

// DefaultWindows are the named windows the reporting layer asks for.
var DefaultWindows = map[string]WindowConfig{
	"12m": {TradingDays: 252, MinObservations: 150},
	"3m":  {TradingDays: 63, MinObservations: 40},
}

const (
	// maxAlignmentAgeDays rejects computations whose most recent aligned
	// point is too far in the past: a stale alignment must not produce a
	// misleading statistic.
	maxAlignmentAgeDays = 20

	// Default minimum observation counts by window length.
	minObsLongWindow  = 150
	minObsShortWindow = 40
	longWindowCutoff  = 200
	defaultWinsorLow  = 0.01
	defaultWinsorHigh = 0.99
)

// Engine computes windowed correlations. The clock is injectable for tests.
type Engine struct {
	winsorLow  float64
	winsorHigh float64
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWinsorPercentiles overrides the winsorization bounds.
func WithWinsorPercentiles(low, high float64) Option {
	return func(e *Engine) {
		if low >= 0 && high <= 1 && low < high {
			e.winsorLow = low
			e.winsorHigh = high
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a correlation engine with default winsorization bounds.
func NewEngine(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		winsorLow:  defaultWinsorLow,
		winsorHigh: defaultWinsorHigh,
		now:        time.Now,
		log:        log.With().Str("component", "correlation").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute calculates the Pearson correlation of log returns between asset and
// base over the most recent windowDays aligned points. minObservations <= 0
// selects the default for the window length (150 for >=200-day windows, 40
// otherwise).
func (e *Engine) Compute(asset, base *domain.TimeSeries, windowDays, minObservations int) domain.CorrelationResult {
	result := domain.CorrelationResult{}
	if p := asset.LatestPoint(); p != nil {
		result.LastAssetDate = p.Date
	}
	if p := base.LatestPoint(); p != nil {
		result.LastBaseDate = p.Date
	}

	if minObservations <= 0 {
		if windowDays >= longWindowCutoff {
			minObservations = minObsLongWindow
		} else {
			minObservations = minObsShortWindow
		}
	}

	today := e.now().UTC()
	aligned := series.Align(asset, base, series.AlignOptions{Today: today})
	if len(aligned) < windowDays {
		e.log.Debug().
			Int("aligned", len(aligned)).
			Int("window_days", windowDays).
			Msg("Insufficient aligned history")
		result.NObservations = len(aligned)
		return result
	}

	window := aligned[len(aligned)-windowDays:]

	// Staleness gate: the last aligned date must be recent.
	lastDate, err := time.Parse(domain.DateFormat, window[len(window)-1].Date)
	if err != nil || today.Sub(lastDate).Hours()/24 > maxAlignmentAgeDays {
		e.log.Warn().
			Str("last_aligned_date", window[len(window)-1].Date).
			Msg("Alignment too stale for correlation")
		result.NObservations = len(window)
		return result
	}

	dates := make([]string, len(window))
	v1 := make([]float64, len(window))
	v2 := make([]float64, len(window))
	for i, p := range window {
		dates[i] = p.Date
		v1[i] = p.Value1
		v2[i] = p.Value2
	}

	r1 := series.LogReturns(dates, v1)
	r2 := series.LogReturns(dates, v2)

	// Intersect by date: both series must have a valid return on that date.
	common := make([]string, 0, len(r1))
	for d := range r1 {
		if _, ok := r2[d]; ok {
			common = append(common, d)
		}
	}
	sort.Strings(common)

	result.NObservations = len(common)
	if len(common) < minObservations {
		e.log.Debug().
			Int("observations", len(common)).
			Int("min_observations", minObservations).
			Msg("Too few overlapping returns")
		return result
	}

	x := make([]float64, len(common))
	y := make([]float64, len(common))
	for i, d := range common {
		x[i] = r1[d]
		y[i] = r2[d]
	}

	winsorize(x, e.winsorLow, e.winsorHigh)
	winsorize(y, e.winsorLow, e.winsorHigh)

	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return result
	}
	// Guard against floating point drift outside [-1, 1].
	corr = math.Max(-1, math.Min(1, corr))
	result.Correlation = &corr

	return result
}

// ComputeNamed computes the correlation for a named default window.
func (e *Engine) ComputeNamed(asset, base *domain.TimeSeries, window string) (domain.CorrelationResult, bool) {
	cfg, ok := DefaultWindows[window]
	if !ok {
		return domain.CorrelationResult{}, false
	}
	return e.Compute(asset, base, cfg.TradingDays, cfg.MinObservations), true
}

// winsorize clamps values in place to the empirical low/high percentiles,
// bounding outlier influence. Percentile values are taken at index
// floor(p * n) of the sorted sample.
func winsorize(values []float64, low, high float64) {
	n := len(values)
	if n == 0 {
		return
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	lo := sorted[clampIndex(int(low*float64(n)), n)]
	hi := sorted[clampIndex(int(high*float64(n)), n)]

	for i, v := range values {
		if v < lo {
			values[i] = lo
		} else if v > hi {
			values[i] = hi
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
