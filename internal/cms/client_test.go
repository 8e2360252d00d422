package cms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRetriesRateLimitedRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]assetWire{{ID: 1, SourceURL: "https://site.example.com/a.jpg"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(LinearBackoff{MaxAttempts: 3, Delay: time.Millisecond}))
	assets, err := c.SearchAssets(context.Background(), "a.jpg", 10)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientNoRetryFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(NoRetry{}))
	_, err := c.SearchAssets(context.Background(), "a.jpg", 10)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientSendsBasicAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithAuth("editor", "app-pass"))
	_, err := c.SearchAssets(context.Background(), "x", 10)
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("editor:app-pass"))
	assert.Equal(t, want, gotAuth)
}

func TestDocumentPagerStopsAtShortPage(t *testing.T) {
	perPage := 2
	pages := [][]documentWire{
		{{ID: 1, Content: rendered{Rendered: "<p>one</p>"}}, {ID: 2, Content: rendered{Rendered: "<p>two</p>"}}},
		{{ID: 3, Content: rendered{Rendered: "<p>three</p>"}}},
	}
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		if page > len(pages) {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(pages[page-1])
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(NoRetry{}))
	pager := c.Documents(perPage, DocumentFilter{})

	first, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "<p>one</p>", first[0].Content)

	second, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)

	// The short page ended the listing; no further requests are made.
	third, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, third)
	assert.Equal(t, int32(2), requests.Load())
}

func TestDocumentPagerHandles404End(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		if page > 1 {
			http.NotFound(w, r)
			return
		}
		// A full page forces the pager to try page two.
		json.NewEncoder(w).Encode([]documentWire{
			{ID: 1, Content: rendered{Rendered: "a"}},
			{ID: 2, Content: rendered{Rendered: "b"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(NoRetry{}))
	pager := c.Documents(2, DocumentFilter{})

	first, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestUploadAssetSetsDispositionAndDecodesRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp/v2/media", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="photo__opt.jpg"`, r.Header.Get("Content-Disposition"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(assetWire{ID: 99, SourceURL: "https://site.example.com/u/photo__opt.jpg"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(NoRetry{}))
	asset, err := c.UploadAsset(context.Background(), "photo__opt.jpg", "image/jpeg", []byte{0xFF, 0xD8})
	require.NoError(t, err)
	assert.Equal(t, int64(99), asset.ID)
	assert.Equal(t, "https://site.example.com/u/photo__opt.jpg", asset.SourceURL)
}

func TestGetAssetMissingIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithBackoff(NoRetry{}))
	asset, err := c.GetAsset(context.Background(), 123)
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestAssetFilesizeFromMediaDetails(t *testing.T) {
	w := assetWire{
		ID:           5,
		SourceURL:    "https://site.example.com/u/a.jpg",
		MediaDetails: map[string]any{"filesize": float64(12345)},
	}
	a := w.toDomain()
	require.NotNil(t, a.FileSize)
	assert.Equal(t, int64(12345), *a.FileSize)
}
