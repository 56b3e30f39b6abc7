package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingParse(n *int) ParseFunc {
	return func(body []byte) (int, error) {
		var rows []int
		if err := json.Unmarshal(body, &rows); err != nil {
			return 0, err
		}
		*n = len(rows)
		return len(rows), nil
	}
}

func TestFetchSuccessFirstEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[1,2,3]"))
	}))
	defer srv.Close()

	f := New(zerolog.Nop())
	var got int
	err := f.Fetch(context.Background(), []string{srv.URL}, countingParse(&got))
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestFetchRateLimitBackoffTiming(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("[1]"))
	}))
	defer srv.Close()

	var slept []time.Duration
	f := New(zerolog.Nop(), WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	var got int
	err := f.Fetch(context.Background(), []string{srv.URL}, countingParse(&got))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Exponential: base, then double.
	assert.Equal(t, []time.Duration{2000 * time.Millisecond, 4000 * time.Millisecond}, slept)
}

func TestFetchRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var slept []time.Duration
	f := New(zerolog.Nop(), WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	err := f.Fetch(context.Background(), []string{srv.URL}, countingParse(new(int)))
	require.Error(t, err)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, ClassRateLimit, ferr.Class)
	assert.Equal(t, http.StatusTooManyRequests, ferr.Status)
	// maxRetries=3 means two backoff sleeps before giving up.
	assert.Len(t, slept, 2)
}

func TestFetchAuthAbortsProvider(t *testing.T) {
	secondHit := false
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHit = true
		w.Write([]byte("[1]"))
	}))
	defer second.Close()

	f := New(zerolog.Nop())
	err := f.Fetch(context.Background(), []string{first.URL, second.URL}, countingParse(new(int)))
	require.Error(t, err)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, ClassAuth, ferr.Class)
	assert.False(t, secondHit, "fatal error must not try further endpoint variants")
}

func TestFetchServerErrorFallsThroughToNextEndpoint(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[1,2]"))
	}))
	defer second.Close()

	f := New(zerolog.Nop())
	var got int
	err := f.Fetch(context.Background(), []string{first.URL, second.URL}, countingParse(&got))
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestFetchEmptyResponseIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f := New(zerolog.Nop())
	err := f.Fetch(context.Background(), []string{srv.URL}, countingParse(new(int)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestFetchBodyDiagnosticTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	f := New(zerolog.Nop())
	err := f.Fetch(context.Background(), []string{srv.URL}, countingParse(new(int)))
	require.Error(t, err)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.LessOrEqual(t, len(ferr.Body), 503) // 500 chars plus ellipsis
}

func TestFetchNetworkErrorMovesOn(t *testing.T) {
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[9]"))
	}))
	defer second.Close()

	f := New(zerolog.Nop())
	var got int
	err := f.Fetch(context.Background(), []string{"http://127.0.0.1:1", second.URL}, countingParse(&got))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
