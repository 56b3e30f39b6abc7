// Package fred provides the client for the primary statistical-agency API
// (FRED). Series are queried by series code and date range; observations come
// back as dated string values with "." marking missing data.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
)

const (
	// ProviderName identifies this adapter in indicator configs and
	// attempt logs.
	ProviderName = "fred"

	defaultBaseURL = "https://api.stlouisfed.org/fred"
)

// Series codes are short alphanumeric identifiers (CPIAUCSL, UNRATE,
// UMCSENT.M). Anything else is a configuration error, caught before any
// network call is made.
var seriesCodePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{1,25}$`)

// Client is the FRED API adapter. It implements domain.ProviderAdapter.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a FRED client.
func NewClient(apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "fred").Logger(),
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// Name implements domain.ProviderAdapter.
func (c *Client) Name() string {
	return ProviderName
}

// ValidateID implements domain.ProviderAdapter. No I/O.
func (c *Client) ValidateID(nativeID string) error {
	if !seriesCodePattern.MatchString(nativeID) {
		return fmt.Errorf("invalid series code %q: must match %s", nativeID, seriesCodePattern.String())
	}
	return nil
}

// observationsResponse is the wire shape of /series/observations.
type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FetchSeries implements domain.ProviderAdapter.
//
// Monthly survey-style indicators arrive dated on the 1st of the month; that
// date stands for the whole month. This is a provider convention inferred
// from observed data, preserved as-is rather than re-anchored.
func (c *Client) FetchSeries(ctx context.Context, nativeID string, rng domain.DateRange) (*domain.TimeSeries, error) {
	q := url.Values{}
	q.Set("series_id", nativeID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	if !rng.Start.IsZero() {
		q.Set("observation_start", rng.Start.Format(domain.DateFormat))
	}
	if !rng.End.IsZero() {
		q.Set("observation_end", rng.End.Format(domain.DateFormat))
	}
	endpoint := fmt.Sprintf("%s/series/observations?%s", c.baseURL, q.Encode())

	var parsed observationsResponse
	err := c.fetcher.Fetch(ctx, []string{endpoint}, func(body []byte) (int, error) {
		parsed = observationsResponse{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return 0, fmt.Errorf("failed to parse observations: %w", err)
		}
		return len(parsed.Observations), nil
	})
	if err != nil {
		return nil, err
	}

	s := &domain.TimeSeries{
		SourceName: ProviderName,
		NativeID:   nativeID,
		Points:     make([]domain.Point, 0, len(parsed.Observations)),
	}
	for _, obs := range parsed.Observations {
		p := domain.Point{Date: obs.Date}
		// "." is the provider's marker for a missing observation.
		if obs.Value != "" && obs.Value != "." {
			if v, perr := strconv.ParseFloat(obs.Value, 64); perr == nil {
				p.Value = domain.Float(v)
			}
		}
		s.Points = append(s.Points, p)
	}

	c.log.Debug().
		Str("series", nativeID).
		Int("observations", len(s.Points)).
		Msg("Fetched series")
	return s, nil
}
