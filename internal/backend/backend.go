// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend queries web search APIs and returns ranked candidate URLs.
// Each provider (Google Custom Search, Bing Web Search) implements the
// Backend interface per the Strategy pattern; callers stay provider-agnostic.
//
// The adapter performs no duplicate-URL suppression: the same URL returned
// across different queries is a legitimate distinct observation and each
// occurrence must be diary-logged. Dedup is the fetcher's job.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// ErrQuotaExceeded is returned once the per-run query quota is exhausted.
// The adapter fails loudly instead of silently truncating the result set.
var ErrQuotaExceeded = errors.New("search query quota exceeded")

// Result holds the outcome of one executed query.
type Result struct {
	// URLs lists the candidate URLs in backend ranking order, capped at
	// the configured per-query maximum.
	URLs []string

	// RawBody is the raw provider response, retained for diary logging.
	RawBody []byte
}

// Backend executes a single query against one search provider.
type Backend interface {
	Name() string
	Execute(ctx context.Context, query string, cfg types.SearchConfig) (Result, error)
}

// Quota is a hard per-run query counter shared across companies. It is
// safe for concurrent use; the zero limit means unlimited.
type Quota struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewQuota returns a quota allowing up to limit queries. limit <= 0 means
// no quota.
func NewQuota(limit int) *Quota {
	return &Quota{limit: limit}
}

// Take consumes one query slot. It returns ErrQuotaExceeded once the
// limit is reached.
func (q *Quota) Take() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.used >= q.limit {
		return ErrQuotaExceeded
	}
	q.used++
	return nil
}

// Used returns the number of queries consumed so far.
func (q *Quota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// FromConfig selects the backend from the configured credentials: Google
// Custom Search when a key and cx are present, otherwise Bing. Missing
// credentials for both providers is a configuration error.
func FromConfig(cfg types.SearchConfig, client *http.Client) (Backend, error) {
	switch {
	case cfg.GoogleAPIKey != "" && cfg.GoogleCX != "":
		return &GoogleCSE{Client: client}, nil
	case cfg.BingAPIKey != "":
		return &Bing{Client: client}, nil
	default:
		return nil, fmt.Errorf("no search backend credentials configured (need google api key + cx, or bing api key)")
	}
}
