package dbnomics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
)

func TestValidateID(t *testing.T) {
	c := NewClient(fetch.New(zerolog.Nop()), zerolog.Nop())

	assert.NoError(t, c.ValidateID("BLS/cu/CUUR0000SA0"))
	assert.NoError(t, c.ValidateID("ECB/EXR/D.USD.EUR.SP00.A"))
	assert.Error(t, c.ValidateID("BLS/cu"))
	assert.Error(t, c.ValidateID("BLS/cu/series/extra"))
	assert.Error(t, c.ValidateID("BLS//CUUR0000SA0"))
	assert.Error(t, c.ValidateID("BLS/c u/x"))
}

func TestNormalizePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-15", "2024-03-15", true},
		{"2024-03", "2024-03-01", true},
		{"2024-Q1", "2024-01-01", true},
		{"2024-Q2", "2024-04-01", true},
		{"2024-Q4", "2024-10-01", true},
		{"2024", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizePeriod(tt.in)
		assert.Equal(t, tt.ok, ok, "period %q", tt.in)
		assert.Equal(t, tt.want, got, "period %q", tt.in)
	}
}

func TestFetchSeriesParsesDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/BLS/cu/CUUR0000SA0", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("observations"))
		w.Write([]byte(`{"series":{"docs":[
			{"period":["2024-01","2024-02","2024-03"],"value":[308.4,null,312.3]}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(fetch.New(zerolog.Nop()), zerolog.Nop())
	c.SetBaseURL(srv.URL)

	s, err := c.FetchSeries(context.Background(), "BLS/cu/CUUR0000SA0", domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, s.Points, 3)

	assert.Equal(t, "2024-01-01", s.Points[0].Date)
	require.NotNil(t, s.Points[0].Value)
	assert.InDelta(t, 308.4, *s.Points[0].Value, 1e-9)

	// null values survive as explicit gaps.
	assert.Equal(t, "2024-02-01", s.Points[1].Date)
	assert.Nil(t, s.Points[1].Value)
}

func TestFetchSeriesQuarterlyPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"series":{"docs":[
			{"period":["2023-Q4","2024-Q1"],"value":[1.2,0.8]}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(fetch.New(zerolog.Nop()), zerolog.Nop())
	c.SetBaseURL(srv.URL)

	s, err := c.FetchSeries(context.Background(), "BEA/NIPA-T10106/A191RX-Q", domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, s.Points, 2)
	assert.Equal(t, "2023-10-01", s.Points[0].Date)
	assert.Equal(t, "2024-01-01", s.Points[1].Date)
}
