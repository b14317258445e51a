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

// googleSearchBase is the Google Custom Search endpoint. Declared as a var
// so tests can substitute an httptest server.
var googleSearchBase = "https://www.googleapis.com/customsearch/v1"

// GoogleCSE queries the Google Custom Search JSON API.
type GoogleCSE struct {
	Client *http.Client
}

// Name returns the backend identifier used in diary entries.
func (b *GoogleCSE) Name() string { return "google_cse" }

// Execute runs one query and returns the ranked result URLs. Transient
// errors (429, 5xx) are retried with bounded exponential backoff; after
// exhaustion the final status is returned as an error so the caller can
// diary-log the failure.
func (b *GoogleCSE) Execute(ctx context.Context, query string, cfg types.SearchConfig) (Result, error) {
	num := cfg.MaxURLsPerQuery
	if num <= 0 {
		num = 10
	}
	if num > 10 {
		num = 10 // API page-size ceiling
	}

	params := url.Values{
		"q":   {query},
		"key": {cfg.GoogleAPIKey},
		"cx":  {cfg.GoogleCX},
		"num": {strconv.Itoa(num)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, cfg.MaxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("google api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading google response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{RawBody: body}, fmt.Errorf("google api returned HTTP %d", resp.StatusCode)
	}

	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return Result{RawBody: body}, fmt.Errorf("parsing google response: %w", err)
	}

	urls := make([]string, 0, len(gr.Items))
	for _, item := range gr.Items {
		if item.Link == "" {
			continue
		}
		urls = append(urls, item.Link)
		if len(urls) >= cfg.MaxURLsPerQuery && cfg.MaxURLsPerQuery > 0 {
			break
		}
	}
	return Result{URLs: urls, RawBody: body}, nil
}

// Google Custom Search JSON structures.
type googleResponse struct {
	Items []googleItem `json:"items"`
}

type googleItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}
