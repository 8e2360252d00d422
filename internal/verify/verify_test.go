package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunReportsPerURLOutcomes(t *testing.T) {
	var flakyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flakyHits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewChecker(srv.Client(), zap.NewNop())
	urls := []string{srv.URL + "/ok", srv.URL + "/missing", srv.URL + "/flaky"}
	results := c.Run(context.Background(), urls, Options{
		Concurrency: 2,
		Retries:     1,
		RetryDelay:  5 * time.Millisecond,
		Timeout:     2 * time.Second,
	})
	require.Len(t, results, 3)

	ok := results[0]
	assert.True(t, ok.OK)
	assert.Equal(t, http.StatusOK, ok.Status)
	assert.Equal(t, 1, ok.Attempts)

	missing := results[1]
	assert.False(t, missing.OK)
	assert.Equal(t, http.StatusNotFound, missing.Status)
	assert.Equal(t, 2, missing.Attempts, "non-2xx is retried before giving up")
	assert.NotEmpty(t, missing.Error)

	flaky := results[2]
	assert.True(t, flaky.OK)
	assert.Equal(t, 2, flaky.Attempts)
	assert.Empty(t, flaky.Error)
}

func TestRunOnlyAcceptsStatusOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), zap.NewNop())
	results := c.Run(context.Background(), []string{srv.URL}, Options{
		Retries:    0,
		RetryDelay: time.Millisecond,
		Timeout:    2 * time.Second,
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK, "a 2xx other than 200 is not proof the asset is there")
	assert.Equal(t, http.StatusNoContent, results[0].Status)
}

func TestRunLabelsTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), zap.NewNop())
	results := c.Run(context.Background(), []string{srv.URL}, Options{
		Retries:    0,
		RetryDelay: time.Millisecond,
		Timeout:    30 * time.Millisecond,
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, "timeout", results[0].Error)
}

func TestRunEmptyInput(t *testing.T) {
	c := NewChecker(nil, zap.NewNop())
	assert.Empty(t, c.Run(context.Background(), nil, Options{}))
}
