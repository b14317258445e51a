// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-pipeline/internal/httputil"
	"github.com/pdiddy/evidence-pipeline/internal/store"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

func testFetcher(t *testing.T, cfg types.FetchConfig) (*Fetcher, *store.Store) {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "evidence-pipeline-test/0.1"
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "raw"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(cfg, st, zap.NewNop()), st
}

func TestFetchStoresDocument(t *testing.T) {
	body := "<html><head><title>Pricing</title></head><body>SaaS subscription</body></html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{})
	doc, err := f.Fetch(context.Background(), ts.URL+"/pricing", "Acme Oy")
	require.NoError(t, err)

	assert.Equal(t, ts.URL+"/pricing", doc.URL)
	assert.Len(t, doc.ContentHash, 64)
	assert.Equal(t, http.StatusOK, doc.HTTPStatus)
	assert.Equal(t, int64(len(body)), doc.Size)

	stored, err := f.ReadBody(doc)
	require.NoError(t, err)
	assert.Equal(t, []byte(body), stored)
}

func TestFetchDeduplicatesIdenticalContent(t *testing.T) {
	body := "<html><body>identical bytes</body></html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	f, st := testFetcher(t, types.FetchConfig{})
	doc1, err := f.Fetch(context.Background(), ts.URL+"/a", "Acme Oy")
	require.NoError(t, err)
	doc2, err := f.Fetch(context.Background(), ts.URL+"/b", "Acme Oy")
	require.NoError(t, err)

	assert.Equal(t, doc1.ContentHash, doc2.ContentHash)
	assert.Equal(t, doc1.StoragePath, doc2.StoragePath)

	n, err := st.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFetchResumesFromStore(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>once</html>")
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{})
	url := ts.URL + "/page"

	doc1, err := f.Fetch(context.Background(), url, "Acme Oy")
	require.NoError(t, err)
	doc2, err := f.Fetch(context.Background(), url, "Acme Oy")
	require.NoError(t, err)

	assert.Equal(t, doc1.ContentHash, doc2.ContentHash)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second fetch of the same URL must not hit the network")
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>eventually</html>")
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{})
	doc, err := f.Fetch(context.Background(), ts.URL+"/flaky", "Acme Oy")
	require.NoError(t, err, "503 three times then 200 must succeed without surfacing an error")
	assert.Equal(t, http.StatusOK, doc.HTTPStatus)
}

func TestFetchTerminalStatusIsFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{})
	_, err := f.Fetch(context.Background(), ts.URL+"/gone", "Acme Oy")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	_, isSkip := IsSkip(err)
	assert.False(t, isSkip)
}

func TestFetchRobotsDisallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>secret</html>")
	}))
	defer ts.Close()

	f, st := testFetcher(t, types.FetchConfig{})

	_, err := f.Fetch(context.Background(), ts.URL+"/private/page", "Acme Oy")
	require.Error(t, err)
	reason, ok := IsSkip(err)
	require.True(t, ok)
	assert.Equal(t, SkipRobots, reason)

	n, err := st.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "disallowed URL must not be stored")

	// Allowed paths on the same host still fetch.
	doc, err := f.Fetch(context.Background(), ts.URL+"/public", "Acme Oy")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ContentHash)
}

func TestFetchSkipRobotsConfig(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>content</html>")
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{SkipRobots: true})
	_, err := f.Fetch(context.Background(), ts.URL+"/page", "Acme Oy")
	assert.NoError(t, err)
}

func TestFetchUnsupportedContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "not really a png")
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{})
	_, err := f.Fetch(context.Background(), ts.URL+"/image", "Acme Oy")
	require.Error(t, err)
	reason, ok := IsSkip(err)
	require.True(t, ok)
	assert.Equal(t, SkipUnsupportedType, reason)
}

func TestFetchTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>")
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, "0123456789")
		}
		fmt.Fprint(w, "</html>")
	}))
	defer ts.Close()

	f, _ := testFetcher(t, types.FetchConfig{MaxBodyBytes: 100})
	_, err := f.Fetch(context.Background(), ts.URL+"/big", "Acme Oy")
	require.Error(t, err)
	reason, ok := IsSkip(err)
	require.True(t, ok)
	assert.Equal(t, SkipTooLarge, reason)
}

func TestCheckURLGates(t *testing.T) {
	tests := []struct {
		name string
		url  string
		skip bool
	}{
		{"https allowed", "https://acme.fi/pricing", false},
		{"http allowed", "http://acme.fi/pricing", false},
		{"ftp rejected", "ftp://acme.fi/file", true},
		{"blocklisted host", "https://facebook.com/acme", true},
		{"blocklisted subdomain", "https://www.facebook.com/acme", true},
		{"media extension", "https://acme.fi/logo.png", true},
		{"office extension", "https://acme.fi/report.xlsx", true},
		{"pdf extension allowed", "https://acme.fi/report.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkURL(tt.url)
			if tt.skip {
				require.Error(t, err)
				_, ok := IsSkip(err)
				assert.True(t, ok)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
