package fred

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
)

func TestValidateID(t *testing.T) {
	c := NewClient("key", fetch.New(zerolog.Nop()), zerolog.Nop())

	assert.NoError(t, c.ValidateID("CPIAUCSL"))
	assert.NoError(t, c.ValidateID("UMCSENT.M"))
	assert.NoError(t, c.ValidateID("DGS10"))
	assert.Error(t, c.ValidateID(""))
	assert.Error(t, c.ValidateID("has spaces"))
	assert.Error(t, c.ValidateID("way/too/weird"))
	assert.Error(t, c.ValidateID("ABCDEFGHIJKLMNOPQRSTUVWXYZ")) // over 25 chars
}

func TestFetchSeriesParsesObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/observations", r.URL.Path)
		assert.Equal(t, "CPIAUCSL", r.URL.Query().Get("series_id"))
		assert.Equal(t, "testkey", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("file_type"))
		w.Write([]byte(`{"observations":[
			{"date":"2024-01-01","value":"308.417"},
			{"date":"2024-02-01","value":"."},
			{"date":"2024-03-01","value":"312.332"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("testkey", fetch.New(zerolog.Nop()), zerolog.Nop())
	c.SetBaseURL(srv.URL)

	s, err := c.FetchSeries(context.Background(), "CPIAUCSL", domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, s.Points, 3)

	assert.Equal(t, "2024-01-01", s.Points[0].Date)
	require.NotNil(t, s.Points[0].Value)
	assert.InDelta(t, 308.417, *s.Points[0].Value, 1e-9)

	// "." marks a missing observation.
	assert.Nil(t, s.Points[1].Value)

	assert.Equal(t, ProviderName, s.SourceName)
	assert.Equal(t, "CPIAUCSL", s.NativeID)
}

func TestFetchSeriesSendsDateRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2020-01-01", r.URL.Query().Get("observation_start"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("observation_end"))
		w.Write([]byte(`{"observations":[{"date":"2023-06-01","value":"1.0"}]}`))
	}))
	defer srv.Close()

	c := NewClient("testkey", fetch.New(zerolog.Nop()), zerolog.Nop())
	c.SetBaseURL(srv.URL)

	rng := domain.DateRange{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := c.FetchSeries(context.Background(), "DGS10", rng)
	require.NoError(t, err)
}

func TestFetchSeriesEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[]}`))
	}))
	defer srv.Close()

	c := NewClient("testkey", fetch.New(zerolog.Nop()), zerolog.Nop())
	c.SetBaseURL(srv.URL)

	_, err := c.FetchSeries(context.Background(), "CPIAUCSL", domain.DateRange{})
	require.Error(t, err)
}
