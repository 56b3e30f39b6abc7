package domain

import "context"

// Attempt reasons recorded for providers that were skipped without a network call.
const (
	ReasonMisconfig      = "MISCONFIG"
	ReasonSourceDisabled = "SOURCE_DISABLED"
	ReasonNoData         = "no data"
)

// Aggregate error types classifying a failed resolution across all providers.
// The precedence order (misconfig > rate limited > source down > no data >
// blocked > not available > no data source) mirrors operator expectations:
// fix-your-config beats transient outages beats legitimately-empty responses.
const (
	ErrTypeMisconfig    = "MISCONFIG"
	ErrTypeRateLimited  = "RATE_LIMITED"
	ErrTypeSourceDown   = "SOURCE_DOWN"
	ErrTypeNoData       = "NO_DATA"
	ErrTypeBlocked      = "blocked"
	ErrTypeNotAvailable = "not_available_in_source"
	ErrTypeNoDataSource = "no_data_source"
)

// SourceAttempt records one provider tried during a single resolution.
// Attempts are append-only; the slice is owned by the resolution call.
type SourceAttempt struct {
	Source     string `json:"source"`
	Attempted  bool   `json:"attempted"`
	Reason     string `json:"reason"`
	Error      string `json:"error,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// ResolverResult is the outcome of resolving one indicator across its
// configured providers. If Success is true, exactly one attempt has
// Attempted=true and no error; if false, Series is nil.
type ResolverResult struct {
	Success    bool            `json:"success"`
	Series     *TimeSeries     `json:"series,omitempty"`
	SourceUsed string          `json:"source_used,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorType  string          `json:"error_type,omitempty"`
	Attempts   []SourceAttempt `json:"attempts"`
}

// ProviderAdapter is the common contract all upstream data providers implement.
// Each adapter owns its response-shape parsing and returns series in the common
// TimeSeries form. ValidateID must be callable without any I/O.
type ProviderAdapter interface {
	// Name returns the provider identifier used in attempt logs and config.
	Name() string
	// ValidateID checks a provider-native series identifier without touching
	// the network. A non-nil error means the identifier is misconfigured.
	ValidateID(nativeID string) error
	// FetchSeries fetches and parses one series. An empty (but well-formed)
	// response returns an empty series and a nil error.
	FetchSeries(ctx context.Context, nativeID string, rng DateRange) (*TimeSeries, error)
}

// Availability is the per-provider kill-switch state, passed into each
// resolution explicitly so results stay deterministic and testable.
// A provider missing from the map counts as enabled.
type Availability map[string]bool

// Enabled reports whether the named provider may be attempted.
func (a Availability) Enabled(provider string) bool {
	if a == nil {
		return true
	}
	enabled, ok := a[provider]
	return !ok || enabled
}

// TransformType selects an optional derivation applied to a resolved level
// series before it is returned to the caller.
type TransformType string

const (
	TransformNone     TransformType = ""
	TransformYoY      TransformType = "yoy"
	TransformQoQDelta TransformType = "qoq_delta"
	TransformQoQRatio TransformType = "qoq_ratio"
)

// SourceRef binds a provider to the identifier the indicator carries there.
type SourceRef struct {
	Provider string `json:"provider"`
	NativeID string `json:"native_id"`
}

// IndicatorSpec describes one indicator to resolve: its priority-ordered
// sources and the optional transform derived from the fetched level series.
type IndicatorSpec struct {
	Key       string        `json:"key"`
	Name      string        `json:"name"`
	Frequency Frequency     `json:"frequency"`
	Unit      string        `json:"unit,omitempty"`
	Sources   []SourceRef   `json:"sources"`
	Transform TransformType `json:"transform,omitempty"`
}

// CorrelationResult is the outcome of one windowed correlation computation.
// Correlation is nil on any gate failure (insufficient history, staleness,
// too few overlapping returns) and always within [-1, 1] otherwise.
type CorrelationResult struct {
	Correlation   *float64 `json:"correlation"`
	NObservations int      `json:"n_observations"`
	LastAssetDate string   `json:"last_asset_date,omitempty"`
	LastBaseDate  string   `json:"last_base_date,omitempty"`
}

// FreshnessStatus classifies the age of an indicator's latest observation.
type FreshnessStatus string

const (
	FreshnessFresh FreshnessStatus = "fresh"
	FreshnessStale FreshnessStatus = "stale"
	FreshnessOld   FreshnessStatus = "old"
)

// LatestAvailableValue is the latest usable observation of a series together
// with its age classification.
type LatestAvailableValue struct {
	Observation      float64         `json:"observation"`
	LastDate         string          `json:"last_date"`
	AgeDays          int             `json:"age_days"`
	FreshnessStatus  FreshnessStatus `json:"freshness_status"`
	InExpectedPeriod bool            `json:"in_expected_period"`
}
