// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves candidate URLs into the content-addressed store.
// Fetch failures never abort a run: each URL either yields a RawDocument,
// a typed skip (robots, content type, size, blocklist), or a fetch error
// after bounded retries, and the pipeline tallies every outcome.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/evidence-pipeline/internal/httputil"
	"github.com/pdiddy/evidence-pipeline/internal/store"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// SkipReason classifies non-fatal per-URL skips.
type SkipReason string

const (
	// SkipRobots marks URLs disallowed by the host's robots.txt.
	SkipRobots SkipReason = "robots_disallowed"

	// SkipUnsupportedType marks blocked schemes, blocklisted hosts, media
	// extensions, and unsupported response content types.
	SkipUnsupportedType SkipReason = "unsupported_type"

	// SkipTooLarge marks payloads over the configured byte ceiling.
	SkipTooLarge SkipReason = "too_large"
)

// SkipError reports a URL that was deliberately not stored. Skips are
// expected outcomes, recorded and tallied but never fatal.
type SkipError struct {
	URL    string
	Reason SkipReason
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("skipped %s (%s): %s", e.URL, e.Reason, e.Detail)
	}
	return fmt.Sprintf("skipped %s (%s)", e.URL, e.Reason)
}

// FetchError reports a URL whose fetch failed after bounded retries, or
// that returned a terminal non-success status. Non-fatal; recorded per URL.
type FetchError struct {
	URL        string
	HTTPStatus int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.HTTPStatus)
}

func (e *FetchError) Unwrap() error { return e.Err }

// hostDeny lists hosts never fetched regardless of search results.
var hostDeny = []string{"facebook.com", "twitter.com", "x.com"}

// extDeny lists media and office extensions that carry no extractable
// business-model text.
var extDeny = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".mp3": true, ".mp4": true, ".zip": true,
	".rar": true, ".7z": true, ".doc": true, ".docx": true, ".xls": true,
	".xlsx": true,
}

// allowedContentTypes lists response types the pipeline stores. PDFs are
// stored for audit even though snippet extraction only parses HTML.
var allowedContentTypes = []string{"text/html", "application/xhtml", "application/pdf", "text/plain"}

// Fetcher retrieves URLs with robots enforcement, retry with backoff, and
// content-addressed dedup through the store.
type Fetcher struct {
	cfg    types.FetchConfig
	client *http.Client
	store  *store.Store
	robots *robotsAuditor
	logger *zap.Logger
}

// New builds a Fetcher over the given store.
func New(cfg types.FetchConfig, st *store.Store, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		store:  st,
		robots: newRobotsAuditor(client, cfg.UserAgent, logger),
		logger: logger,
	}
}

// Fetch retrieves targetURL for company and returns its stored document.
// A URL already observed in the store is returned without a network round
// trip, which makes diary replay free of re-fetch cost.
func (f *Fetcher) Fetch(ctx context.Context, targetURL, company string) (*types.RawDocument, error) {
	if doc, ok, err := f.store.LookupURL(targetURL); err != nil {
		return nil, err
	} else if ok {
		f.logger.Debug("fetch cache hit", zap.String("url", targetURL), zap.String("hash", doc.ContentHash))
		return &doc, nil
	}

	if err := checkURL(targetURL); err != nil {
		return nil, err
	}

	if !f.cfg.SkipRobots {
		allowed, err := f.robots.isAllowed(ctx, targetURL)
		if err != nil {
			return nil, &SkipError{URL: targetURL, Reason: SkipUnsupportedType, Detail: err.Error()}
		}
		if !allowed {
			return nil, &SkipError{URL: targetURL, Reason: SkipRobots}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.cfg.MaxRetries)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: targetURL, HTTPStatus: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !typeAllowed(contentType) {
		return nil, &SkipError{URL: targetURL, Reason: SkipUnsupportedType, Detail: contentType}
	}

	// Read one byte past the ceiling to distinguish at-limit from over it.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, &SkipError{URL: targetURL, Reason: SkipTooLarge,
			Detail: fmt.Sprintf("over %d bytes", f.cfg.MaxBodyBytes)}
	}

	fetchedAt := time.Now().UTC()
	hash, storagePath, created, err := f.store.Put(body, contentType)
	if err != nil {
		return nil, err
	}
	if err := f.store.Observe(targetURL, hash, company, resp.StatusCode, fetchedAt); err != nil {
		return nil, err
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	f.logger.Debug("fetched",
		zap.String("url", targetURL),
		zap.String("hash", hash),
		zap.Bool("new_artifact", created),
		zap.Int("bytes", len(body)))

	doc := &types.RawDocument{
		URL:         targetURL,
		ContentHash: hash,
		ContentType: contentType,
		FetchedAt:   fetchedAt,
		HTTPStatus:  resp.StatusCode,
		StoragePath: storagePath,
		Size:        int64(len(body)),
	}
	if finalURL != targetURL {
		doc.FinalURL = finalURL
	}
	return doc, nil
}

// ReadBody returns the stored bytes for a fetched document.
func (f *Fetcher) ReadBody(doc *types.RawDocument) ([]byte, error) {
	return f.store.ReadBlob(*doc)
}

// IsSkip reports whether err is a per-URL skip, returning its reason.
func IsSkip(err error) (SkipReason, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

// IsFetchError reports whether err is a per-URL fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// checkURL applies the static URL gates: scheme, host blocklist, media
// extension blocklist.
func checkURL(targetURL string) error {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &SkipError{URL: targetURL, Reason: SkipUnsupportedType, Detail: "non-http url"}
	}
	host := strings.ToLower(u.Hostname())
	for _, deny := range hostDeny {
		if host == deny || strings.HasSuffix(host, "."+deny) {
			return &SkipError{URL: targetURL, Reason: SkipUnsupportedType, Detail: "blocklisted host"}
		}
	}
	if ext := strings.ToLower(path.Ext(u.Path)); extDeny[ext] {
		return &SkipError{URL: targetURL, Reason: SkipUnsupportedType, Detail: "media extension " + ext}
	}
	return nil
}

func typeAllowed(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, allowed := range allowedContentTypes {
		if strings.Contains(ct, allowed) {
			return true
		}
	}
	return false
}
