package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries bounds attempts against a single endpoint variant.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the first backoff sleep; attempt n sleeps
	// baseDelay * 2^(n-1).
	DefaultBaseDelay = 2000 * time.Millisecond

	// maxBodyDiagnostic caps how much of a failing response body is carried
	// in errors and logs.
	maxBodyDiagnostic = 500

	requestTimeout = 30 * time.Second
)

// ErrNoData marks a well-formed response that parsed to zero observations.
// Resolvers treat it as a soft failure, not an outage.
var ErrNoData = errors.New("no data in response")

// Error is the aggregated failure of one provider fetch after all endpoint
// variants and retries are exhausted. It carries the last failure's
// classification and enough context to diagnose the provider.
type Error struct {
	Class    ErrorClass
	Status   int
	Endpoint string
	Body     string // truncated to maxBodyDiagnostic
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s, status %d, endpoint %s): %v", e.Class, e.Status, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s, status %d, endpoint %s)", e.Class, e.Status, e.Endpoint)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseFunc parses a response body and reports how many observations it
// yielded. Implementations typically capture the parsed series in a closure.
type ParseFunc func(body []byte) (n int, err error)

// Fetcher performs HTTP GETs against an ordered list of endpoint variants for
// one provider, with classification-driven retries. Backoff sleeps are local
// to one fetch and never block concurrent resolutions.
type Fetcher struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration)
	log        zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxRetries overrides the per-endpoint retry budget.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxRetries = n
		}
	}
}

// WithBaseDelay overrides the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithSleep replaces the backoff sleep function. Used by tests to observe
// backoff timing without waiting for it.
func WithSleep(sleep func(time.Duration)) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// New creates a Fetcher with the default retry policy.
func New(log zerolog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: requestTimeout},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      time.Sleep,
		log:        log.With().Str("component", "fetcher").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch tries each endpoint in order until one yields non-empty parsed data.
//
// Per attempt:
//   - network error: move to the next endpoint
//   - RATE_LIMIT: sleep baseDelay * 2^(attempt-1) and retry the same endpoint,
//     while attempts remain
//   - AUTH / BAD_REQUEST: fail the whole provider immediately
//   - SERVER / UNKNOWN: move to the next endpoint without long backoff
//   - success that parses to zero observations: move to the next endpoint
//
// Exhausting all endpoints returns a single *Error carrying the last
// failure's classification, status, endpoint and truncated body.
func (f *Fetcher) Fetch(ctx context.Context, endpoints []string, parse ParseFunc) error {
	if len(endpoints) == 0 {
		return &Error{Class: ClassUnknown, Err: errors.New("no endpoints configured")}
	}

	var last *Error

	for _, endpoint := range endpoints {
		fatal, ferr := f.tryEndpoint(ctx, endpoint, parse)
		if ferr == nil {
			return nil
		}
		last = ferr
		if fatal {
			return ferr
		}
	}

	return last
}

// tryEndpoint runs the retry loop for one endpoint. It returns (true, err)
// when the error is fatal for the whole provider.
func (f *Fetcher) tryEndpoint(ctx context.Context, endpoint string, parse ParseFunc) (bool, *Error) {
	var last *Error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		status, body, err := f.doRequest(ctx, endpoint)
		if err != nil {
			// Network-level failure: not worth hammering the same endpoint.
			f.log.Warn().Err(err).Str("endpoint", endpoint).Msg("Request failed")
			return false, &Error{Class: ClassUnknown, Endpoint: endpoint, Err: err}
		}

		if status >= 200 && status < 300 {
			n, perr := parse(body)
			if perr != nil {
				f.log.Warn().Err(perr).Str("endpoint", endpoint).Msg("Failed to parse response")
				return false, &Error{
					Class:    ClassUnknown,
					Status:   status,
					Endpoint: endpoint,
					Body:     truncate(body),
					Err:      perr,
				}
			}
			if n == 0 {
				f.log.Debug().Str("endpoint", endpoint).Msg("Response parsed to zero observations")
				return false, &Error{
					Class:    ClassUnknown,
					Status:   status,
					Endpoint: endpoint,
					Err:      ErrNoData,
				}
			}
			return false, nil
		}

		class := Classify(status, string(body))
		last = &Error{
			Class:    class,
			Status:   status,
			Endpoint: endpoint,
			Body:     truncate(body),
			Err:      fmt.Errorf("provider returned status %d", status),
		}

		if class.Fatal() {
			f.log.Warn().
				Int("status", status).
				Str("class", string(class)).
				Str("endpoint", endpoint).
				Msg("Non-recoverable provider error")
			return true, last
		}

		if class.Retryable() && attempt < f.maxRetries {
			delay := f.baseDelay * (1 << (attempt - 1))
			f.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("endpoint", endpoint).
				Msg("Rate limited, backing off")
			f.sleep(delay)
			continue
		}

		// SERVER / UNKNOWN, or rate-limit retries exhausted: next endpoint.
		return false, last
	}

	return false, last
}

func (f *Fetcher) doRequest(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "macroscope/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxBodyDiagnostic {
		return s[:maxBodyDiagnostic] + "..."
	}
	return s
}
