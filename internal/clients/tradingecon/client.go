// Package tradingecon provides the client for the tertiary commercial API
// (Trading Economics style). Series are addressed by country and indicator
// name, the API key travels in the query string, and the service exposes
// several endpoint shapes that are tried in sequence - historical-by-path,
// historical-by-query, then the plain indicator listing.
package tradingecon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
)

const (
	// ProviderName identifies this adapter in indicator configs.
	ProviderName = "tradingecon"

	defaultBaseURL = "https://api.tradingeconomics.com"
)

// Client is the commercial API adapter. It implements
// domain.ProviderAdapter. This is the flakiest of the providers, so all
// requests go through the retrying fetcher with its full endpoint-variant
// fallback.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a Trading Economics client.
func NewClient(apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "tradingecon").Logger(),
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

// ValidateID implements domain.ProviderAdapter. Identifiers are
// "country:indicator" pairs, both parts non-empty.
func (c *Client) ValidateID(nativeID string) error {
	country, indicator, ok := strings.Cut(nativeID, ":")
	if !ok || strings.TrimSpace(country) == "" || strings.TrimSpace(indicator) == "" {
		return fmt.Errorf("invalid identifier %q: want country:indicator", nativeID)
	}
	return nil
}

// row is the common wire shape shared by the historical endpoints. The plain
// indicator listing uses LatestValue/LatestValueDate instead.
type row struct {
	DateTime        string   `json:"DateTime"`
	Value           *float64 `json:"Value"`
	LatestValue     *float64 `json:"LatestValue"`
	LatestValueDate string   `json:"LatestValueDate"`
	Category        string   `json:"Category"`
	Unit            string   `json:"Unit"`
}

// FetchSeries implements domain.ProviderAdapter.
func (c *Client) FetchSeries(ctx context.Context, nativeID string, rng domain.DateRange) (*domain.TimeSeries, error) {
	country, indicator, _ := strings.Cut(nativeID, ":")
	country = strings.TrimSpace(country)
	indicator = strings.TrimSpace(indicator)

	var rows []row
	err := c.fetcher.Fetch(ctx, c.endpointVariants(country, indicator, rng), func(body []byte) (int, error) {
		rows = nil
		if err := json.Unmarshal(body, &rows); err != nil {
			return 0, fmt.Errorf("failed to parse rows: %w", err)
		}
		return len(rows), nil
	})
	if err != nil {
		return nil, err
	}

	s := &domain.TimeSeries{
		SourceName: ProviderName,
		NativeID:   nativeID,
		Points:     make([]domain.Point, 0, len(rows)),
	}
	for _, r := range rows {
		if s.Unit == "" && r.Unit != "" {
			s.Unit = r.Unit
		}
		date, value := r.DateTime, r.Value
		if date == "" {
			date, value = r.LatestValueDate, r.LatestValue
		}
		date = normalizeDateTime(date)
		if date == "" {
			continue
		}
		s.Points = append(s.Points, domain.Point{Date: date, Value: value})
	}

	c.log.Debug().
		Str("country", country).
		Str("indicator", indicator).
		Int("observations", len(s.Points)).
		Msg("Fetched series")
	return s, nil
}

// endpointVariants returns the URL shapes to try in order. The service has
// drifted between path- and query-parameter forms over time; older accounts
// only see some of them.
func (c *Client) endpointVariants(country, indicator string, rng domain.DateRange) []string {
	auth := url.Values{}
	auth.Set("c", c.apiKey)
	auth.Set("f", "json")

	ec := url.PathEscape(country)
	ei := url.PathEscape(indicator)

	variants := make([]string, 0, 3)
	if !rng.Start.IsZero() && !rng.End.IsZero() {
		variants = append(variants, fmt.Sprintf("%s/historical/country/%s/indicator/%s/%s/%s?%s",
			c.baseURL, ec, ei,
			rng.Start.Format(domain.DateFormat), rng.End.Format(domain.DateFormat),
			auth.Encode()))
	}
	variants = append(variants,
		fmt.Sprintf("%s/historical/country/%s/indicator/%s?%s", c.baseURL, ec, ei, auth.Encode()),
		fmt.Sprintf("%s/country/%s/indicator/%s?%s", c.baseURL, ec, ei, auth.Encode()),
	)
	return variants
}

// normalizeDateTime reduces the provider's timestamp forms
// ("2024-06-30T00:00:00") to an ISO date.
func normalizeDateTime(dt string) string {
	if len(dt) >= 10 && dt[4] == '-' && dt[7] == '-' {
		return dt[:10]
	}
	return ""
}
