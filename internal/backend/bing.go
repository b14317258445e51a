// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/evidence-pipeline/internal/httputil"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// bingSearchBase is the Bing Web Search v7 endpoint. Declared as a var so
// tests can substitute an httptest server.
var bingSearchBase = "https://api.bing.microsoft.com/v7.0/search"

// Bing queries the Bing Web Search v7 API.
type Bing struct {
	Client *http.Client
}

// Name returns the backend identifier used in diary entries.
func (b *Bing) Name() string { return "bing" }

// Execute runs one query and returns the ranked result URLs. Auth is via
// the Ocp-Apim-Subscription-Key header; results are restricted to the
// webPages answer type.
func (b *Bing) Execute(ctx context.Context, query string, cfg types.SearchConfig) (Result, error) {
	count := cfg.MaxURLsPerQuery
	if count <= 0 {
		count = 10
	}

	params := url.Values{
		"q":              {query},
		"count":          {strconv.Itoa(count)},
		"responseFilter": {"Webpages"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bingSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", cfg.BingAPIKey)
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, cfg.MaxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("bing api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading bing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{RawBody: body}, fmt.Errorf("bing api returned HTTP %d", resp.StatusCode)
	}

	var br bingResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return Result{RawBody: body}, fmt.Errorf("parsing bing response: %w", err)
	}

	urls := make([]string, 0, len(br.WebPages.Value))
	for _, page := range br.WebPages.Value {
		if page.URL == "" {
			continue
		}
		urls = append(urls, page.URL)
		if cfg.MaxURLsPerQuery > 0 && len(urls) >= cfg.MaxURLsPerQuery {
			break
		}
	}
	return Result{URLs: urls, RawBody: body}, nil
}

// Bing Web Search JSON structures.
type bingResponse struct {
	WebPages bingWebPages `json:"webPages"`
}

type bingWebPages struct {
	Value []bingPage `json:"value"`
}

type bingPage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
