// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence-pipeline.
// The pipeline collects public-web evidence about SMB software companies'
// business models: queries are generated per company, executed against a
// search backend, candidate URLs are fetched into a content-addressed store,
// and keyword-anchored evidence snippets are extracted into per-company CSVs.
package types

import (
	"strings"
	"time"
)

// Company is one row of the input roster. Identity is the Domain, which must
// be unique across the roster; every generated query is scoped to it.
type Company struct {
	// Name is the company's display name used in query templates and CSV output.
	Name string `json:"name" yaml:"name"`

	// Domain is the company's web domain (e.g. "acme.fi"). Required and unique.
	Domain string `json:"domain" yaml:"domain"`

	// Country is the ISO-style country tag from the roster (default "FI").
	Country string `json:"country" yaml:"country"`

	// Notes carries free-form roster annotations, not used by the pipeline.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Slug returns a filesystem-safe identifier derived from the company name,
// used for diary and CSV filenames. Runs of characters outside
// [a-zA-Z0-9._-] collapse to a single underscore; the result is capped at
// 200 bytes.
func (c Company) Slug() string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range c.Name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	s := b.String()
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// DiaryEntry records one executed search query and its raw results. Entries
// are append-only: the diary is never rewritten, corrections are new entries.
type DiaryEntry struct {
	// Query is the exact query string sent to the backend.
	Query string `json:"query" yaml:"query"`

	// Company is the roster name of the company the query was generated for.
	Company string `json:"company" yaml:"company"`

	// Backend identifies the search backend that executed the query
	// (e.g. "google_cse", "bing").
	Backend string `json:"backend" yaml:"backend"`

	// Timestamp is the UTC time the query was executed.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// ResultURLs lists the candidate URLs in backend ranking order.
	ResultURLs []string `json:"result_urls" yaml:"result_urls"`

	// ResultCount equals len(ResultURLs). Kept explicit so the on-disk
	// record is self-describing for audit.
	ResultCount int `json:"result_count" yaml:"result_count"`

	// Error is non-empty if the query failed after retries. Failed queries
	// are diary-logged too; no failure silently disappears.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RawDocument describes one stored fetch result. Identity is ContentHash,
// not URL: two URLs with byte-identical content map to one stored artifact.
type RawDocument struct {
	// URL is the URL the fetch was issued against.
	URL string `json:"url" yaml:"url"`

	// FinalURL is the URL after redirects, when it differs from URL.
	FinalURL string `json:"final_url,omitempty" yaml:"final_url,omitempty"`

	// ContentHash is the lowercase hex SHA-256 of the raw response body.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// ContentType is the response Content-Type header value.
	ContentType string `json:"content_type" yaml:"content_type"`

	// FetchedAt is the UTC time of the fetch.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`

	// HTTPStatus is the final response status code.
	HTTPStatus int `json:"http_status" yaml:"http_status"`

	// StoragePath is the blob path under the raw area, keyed by ContentHash.
	StoragePath string `json:"storage_path" yaml:"storage_path"`

	// Size is the stored body length in bytes.
	Size int64 `json:"size" yaml:"size"`
}

// IsPDF reports whether the stored document is a PDF. PDFs are stored for
// audit but not parsed for snippets.
func (d RawDocument) IsPDF() bool {
	return strings.Contains(strings.ToLower(d.ContentType), "pdf")
}

// IsHTML reports whether the stored document is HTML and eligible for
// metadata and snippet extraction.
func (d RawDocument) IsHTML() bool {
	return strings.Contains(strings.ToLower(d.ContentType), "html")
}

// DocumentMetadata holds per-fetch extraction output. It is 1:1 with the
// fetch event rather than the content hash, since the same bytes can be
// observed via different URLs.
type DocumentMetadata struct {
	// URL is the fetched URL the metadata was derived for.
	URL string `json:"url" yaml:"url"`

	// Title is the best-effort document title, empty when none was found.
	Title string `json:"title" yaml:"title"`

	// PubdateCandidates lists date strings found in the document, in
	// extraction priority order (structured markup first).
	PubdateCandidates []string `json:"pubdate_candidates,omitempty" yaml:"pubdate_candidates,omitempty"`
}

// EvidenceSnippet is a short keyword-anchored quote taken from a document.
type EvidenceSnippet struct {
	// Company is the roster name of the company the snippet belongs to.
	Company string `json:"company" yaml:"company"`

	// URL is the document URL the quote was taken from.
	URL string `json:"url" yaml:"url"`

	// Keyword is the configured keyword whose match triggered the snippet.
	Keyword string `json:"keyword" yaml:"keyword"`

	// Quote is the extracted text, at most 280 characters, trimmed to
	// whole-word boundaries.
	Quote string `json:"quote" yaml:"quote"`

	// ExtractedAt is the UTC time the snippet was extracted.
	ExtractedAt time.Time `json:"extracted_at" yaml:"extracted_at"`
}
