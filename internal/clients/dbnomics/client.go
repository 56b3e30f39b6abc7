// Package dbnomics provides the client for the secondary aggregator API
// (DBnomics), an SDMX-like service addressed by provider/dataset/series path
// with optional dimension filters. Period strings come back in several
// granularities (daily, monthly, quarterly) and are normalized to ISO dates.
package dbnomics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
)

const (
	// ProviderName identifies this adapter in indicator configs.
	ProviderName = "dbnomics"

	defaultBaseURL = "https://api.db.nomics.world/v22"
)

// Identifiers are "provider/dataset/series" paths. Each segment allows the
// usual SDMX character set.
var (
	idSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	quarterPattern   = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	monthPattern     = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

// Client is the DBnomics adapter. It implements domain.ProviderAdapter.
type Client struct {
	baseURL string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a DBnomics client. The service needs no API key.
func NewClient(fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		fetcher: fetcher,
		log:     log.With().Str("client", "dbnomics").Logger(),
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

// ValidateID implements domain.ProviderAdapter. Identifiers must be
// three-segment "provider/dataset/series" paths.
func (c *Client) ValidateID(nativeID string) error {
	parts := strings.Split(nativeID, "/")
	if len(parts) != 3 {
		return fmt.Errorf("invalid series path %q: want provider/dataset/series", nativeID)
	}
	for _, part := range parts {
		if !idSegmentPattern.MatchString(part) {
			return fmt.Errorf("invalid series path segment %q", part)
		}
	}
	return nil
}

// seriesResponse is the wire shape of /series/{provider}/{dataset}/{series}.
type seriesResponse struct {
	Series struct {
		Docs []struct {
			Period []string   `json:"period"`
			Value  []*float64 `json:"value"`
		} `json:"docs"`
	} `json:"series"`
}

// FetchSeries implements domain.ProviderAdapter.
func (c *Client) FetchSeries(ctx context.Context, nativeID string, rng domain.DateRange) (*domain.TimeSeries, error) {
	q := url.Values{}
	q.Set("observations", "1")
	endpoint := fmt.Sprintf("%s/series/%s?%s", c.baseURL, nativeID, q.Encode())

	var parsed seriesResponse
	err := c.fetcher.Fetch(ctx, []string{endpoint}, func(body []byte) (int, error) {
		parsed = seriesResponse{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return 0, fmt.Errorf("failed to parse series response: %w", err)
		}
		n := 0
		for _, doc := range parsed.Series.Docs {
			n += len(doc.Period)
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	s := &domain.TimeSeries{
		SourceName: ProviderName,
		NativeID:   nativeID,
	}
	start := ""
	end := ""
	if !rng.Start.IsZero() {
		start = rng.Start.Format(domain.DateFormat)
	}
	if !rng.End.IsZero() {
		end = rng.End.Format(domain.DateFormat)
	}
	for _, doc := range parsed.Series.Docs {
		for i, period := range doc.Period {
			date, ok := normalizePeriod(period)
			if !ok {
				continue
			}
			if (start != "" && date < start) || (end != "" && date > end) {
				continue
			}
			p := domain.Point{Date: date}
			if i < len(doc.Value) && doc.Value[i] != nil {
				p.Value = domain.Float(*doc.Value[i])
			}
			s.Points = append(s.Points, p)
		}
	}

	c.log.Debug().
		Str("series", nativeID).
		Int("observations", len(s.Points)).
		Msg("Fetched series")
	return s, nil
}

// normalizePeriod converts an SDMX period string to an ISO date: "2024-03-01"
// stays as-is, "2024-03" becomes the first of the month, "2024-Q2" the first
// day of the quarter.
func normalizePeriod(period string) (string, bool) {
	if m := quarterPattern.FindStringSubmatch(period); m != nil {
		quarter := int(m[2][0] - '0')
		return fmt.Sprintf("%s-%02d-01", m[1], (quarter-1)*3+1), true
	}
	if monthPattern.MatchString(period) {
		return period + "-01", true
	}
	if len(period) == 10 && period[4] == '-' && period[7] == '-' {
		return period, true
	}
	return "", false
}
