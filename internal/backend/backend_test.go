// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/evidence-pipeline/internal/httputil"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "test/0.1",
		},
		MaxURLsPerQuery: 10,
		MaxRetries:      3,
		GoogleAPIKey:    "test-key",
		GoogleCX:        "test-cx",
	}
}

func googleBody(links ...string) string {
	type item struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	}
	items := make([]item, len(links))
	for i, l := range links {
		items[i] = item{Title: fmt.Sprintf("result %d", i+1), Link: l}
	}
	b, _ := json.Marshal(map[string]any{"items": items})
	return string(b)
}

func TestGoogleCSEExecute(t *testing.T) {
	var gotQuery, gotKey, gotCX string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		gotCX = r.URL.Query().Get("cx")
		fmt.Fprint(w, googleBody("https://acme.fi/pricing", "https://acme.fi/about"))
	}))
	defer ts.Close()

	old := googleSearchBase
	googleSearchBase = ts.URL
	defer func() { googleSearchBase = old }()

	b := &GoogleCSE{Client: ts.Client()}
	res, err := b.Execute(context.Background(), `site:acme.fi "business model"`, testCfg())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotQuery != `site:acme.fi "business model"` {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotKey != "test-key" || gotCX != "test-cx" {
		t.Errorf("credentials not forwarded: key=%q cx=%q", gotKey, gotCX)
	}
	if len(res.URLs) != 2 || res.URLs[0] != "https://acme.fi/pricing" {
		t.Errorf("URLs = %v", res.URLs)
	}
	if len(res.RawBody) == 0 {
		t.Error("RawBody empty, want raw response retained for diary")
	}
}

func TestGoogleCSEOrderingAndCap(t *testing.T) {
	links := []string{
		"https://acme.fi/1", "https://acme.fi/2", "https://acme.fi/3",
		"https://acme.fi/4", "https://acme.fi/5",
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, googleBody(links...))
	}))
	defer ts.Close()

	old := googleSearchBase
	googleSearchBase = ts.URL
	defer func() { googleSearchBase = old }()

	cfg := testCfg()
	cfg.MaxURLsPerQuery = 3

	b := &GoogleCSE{Client: ts.Client()}
	res, err := b.Execute(context.Background(), "q", cfg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.URLs) != 3 {
		t.Fatalf("got %d URLs, want cap of 3", len(res.URLs))
	}
	for i, u := range res.URLs {
		if u != links[i] {
			t.Errorf("URL[%d] = %q, want backend order preserved (%q)", i, u, links[i])
		}
	}
}

func TestGoogleCSERetriesTransient(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, googleBody("https://acme.fi/pricing"))
	}))
	defer ts.Close()

	old := googleSearchBase
	googleSearchBase = ts.URL
	defer func() { googleSearchBase = old }()

	b := &GoogleCSE{Client: ts.Client()}
	res, err := b.Execute(context.Background(), "q", testCfg())
	if err != nil {
		t.Fatalf("Execute() after transient errors = %v", err)
	}
	if len(res.URLs) != 1 {
		t.Errorf("URLs = %v", res.URLs)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 (two 503s then success)", got)
	}
}

func TestGoogleCSEExhaustedRetriesFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	old := googleSearchBase
	googleSearchBase = ts.URL
	defer func() { googleSearchBase = old }()

	b := &GoogleCSE{Client: ts.Client()}
	_, err := b.Execute(context.Background(), "q", testCfg())
	if err == nil {
		t.Fatal("Execute() error = nil, want error after exhausted retries")
	}
}

func TestBingExecute(t *testing.T) {
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		fmt.Fprint(w, `{"webPages":{"value":[
			{"name":"Pricing","url":"https://acme.fi/pricing"},
			{"name":"About","url":"https://acme.fi/about"}
		]}}`)
	}))
	defer ts.Close()

	old := bingSearchBase
	bingSearchBase = ts.URL
	defer func() { bingSearchBase = old }()

	cfg := testCfg()
	cfg.GoogleAPIKey = ""
	cfg.GoogleCX = ""
	cfg.BingAPIKey = "bing-key"

	b := &Bing{Client: ts.Client()}
	res, err := b.Execute(context.Background(), "q", cfg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotKey != "bing-key" {
		t.Errorf("subscription key header = %q", gotKey)
	}
	if len(res.URLs) != 2 || res.URLs[1] != "https://acme.fi/about" {
		t.Errorf("URLs = %v", res.URLs)
	}
}

func TestNoDuplicateSuppression(t *testing.T) {
	// The same URL returned for two different queries must appear in both
	// results; dedup belongs to the fetcher.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, googleBody("https://acme.fi/pricing"))
	}))
	defer ts.Close()

	old := googleSearchBase
	googleSearchBase = ts.URL
	defer func() { googleSearchBase = old }()

	b := &GoogleCSE{Client: ts.Client()}
	first, err := b.Execute(context.Background(), "query one", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Execute(context.Background(), "query two", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if len(first.URLs) != 1 || len(second.URLs) != 1 {
		t.Errorf("each query must keep its own occurrence: %v / %v", first.URLs, second.URLs)
	}
}

func TestQuota(t *testing.T) {
	q := NewQuota(2)
	if err := q.Take(); err != nil {
		t.Fatalf("first Take() = %v", err)
	}
	if err := q.Take(); err != nil {
		t.Fatalf("second Take() = %v", err)
	}
	if err := q.Take(); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("third Take() = %v, want ErrQuotaExceeded", err)
	}
	if q.Used() != 2 {
		t.Errorf("Used() = %d, want 2", q.Used())
	}
}

func TestQuotaUnlimited(t *testing.T) {
	q := NewQuota(0)
	for i := 0; i < 100; i++ {
		if err := q.Take(); err != nil {
			t.Fatalf("Take() %d = %v", i, err)
		}
	}
}

func TestQuotaConcurrent(t *testing.T) {
	q := NewQuota(50)
	var wg sync.WaitGroup
	var granted int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Take() == nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()
	if granted != 50 {
		t.Errorf("granted = %d, want exactly 50", granted)
	}
}

func TestFromConfig(t *testing.T) {
	client := &http.Client{}

	google, err := FromConfig(testCfg(), client)
	if err != nil {
		t.Fatalf("FromConfig(google creds) = %v", err)
	}
	if google.Name() != "google_cse" {
		t.Errorf("Name() = %q", google.Name())
	}

	cfg := types.SearchConfig{BingAPIKey: "k"}
	bing, err := FromConfig(cfg, client)
	if err != nil {
		t.Fatalf("FromConfig(bing creds) = %v", err)
	}
	if bing.Name() != "bing" {
		t.Errorf("Name() = %q", bing.Name())
	}

	if _, err := FromConfig(types.SearchConfig{}, client); err == nil {
		t.Error("FromConfig(no creds) = nil, want configuration error")
	}
}
