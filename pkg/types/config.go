// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-pipeline/0.1 (+https://example.org/methods)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxURLsPerQuery caps the number of result URLs kept per query (default 10).
	MaxURLsPerQuery int `json:"max_urls_per_query" yaml:"max_urls_per_query"`

	// MaxQueriesPerRun is the hard query quota for the run. Zero means no
	// quota. Once exhausted the backend fails with ErrQuotaExceeded rather
	// than silently truncating.
	MaxQueriesPerRun int `json:"max_queries_per_run" yaml:"max_queries_per_run"`

	// InterQueryDelay is the pause between consecutive backend queries
	// (default 3s), to stay under provider rate limits.
	InterQueryDelay time.Duration `json:"inter_query_delay" yaml:"inter_query_delay"`

	// MaxRetries bounds retry attempts on transient backend errors (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// GoogleAPIKey and GoogleCX are Google Custom Search credentials.
	GoogleAPIKey string `json:"google_api_key,omitempty" yaml:"google_api_key,omitempty"`
	GoogleCX     string `json:"google_cx,omitempty" yaml:"google_cx,omitempty"`

	// BingAPIKey is the Bing Web Search v7 subscription key.
	BingAPIKey string `json:"bing_api_key,omitempty" yaml:"bing_api_key,omitempty"`
}

// FetchConfig holds settings for the fetch stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxBodyBytes is the per-document size ceiling; larger payloads are
	// skipped, not truncated (default 10 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// MaxRetries bounds retry attempts on transient fetch errors (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// SkipRobots disables robots.txt checks. The zero value keeps checks on.
	SkipRobots bool `json:"skip_robots" yaml:"skip_robots"`
}

// ExtractConfig holds settings for the extraction stage.
type ExtractConfig struct {
	// KeywordsFile optionally overrides the built-in keyword set with a
	// YAML file of keyword strings.
	KeywordsFile string `json:"keywords_file,omitempty" yaml:"keywords_file,omitempty"`

	// MaxSnippetLen is the evidence quote length ceiling in characters
	// (default 280).
	MaxSnippetLen int `json:"max_snippet_len" yaml:"max_snippet_len"`

	// MaxSnippetsPerDoc caps snippets per document (default 3).
	MaxSnippetsPerDoc int `json:"max_snippets_per_doc" yaml:"max_snippets_per_doc"`
}

// OutputConfig holds the persisted namespace layout. All paths are derived
// from OutDir: raw/ for content-addressed blobs, meta/ for per-fetch metadata
// sidecars, logs/ for query diaries, csv/ for per-company evidence CSVs.
type OutputConfig struct {
	// OutDir is the root of the output namespace (default "out").
	OutDir string `json:"out_dir" yaml:"out_dir"`

	// MasterCSV is the aggregated dataset path (default OutDir/master_evidence.csv).
	MasterCSV string `json:"master_csv,omitempty" yaml:"master_csv,omitempty"`
}

// RawDir returns the content-addressed blob area.
func (o OutputConfig) RawDir() string { return joinOut(o.OutDir, "raw") }

// MetaDir returns the per-fetch metadata sidecar area.
func (o OutputConfig) MetaDir() string { return joinOut(o.OutDir, "meta") }

// LogDir returns the query diary area.
func (o OutputConfig) LogDir() string { return joinOut(o.OutDir, "logs") }

// CSVDir returns the per-company CSV area.
func (o OutputConfig) CSVDir() string { return joinOut(o.OutDir, "csv") }

// PipelineConfig groups all stage configurations for a run.
type PipelineConfig struct {
	Search  SearchConfig  `json:"search" yaml:"search"`
	Fetch   FetchConfig   `json:"fetch" yaml:"fetch"`
	Extract ExtractConfig `json:"extract" yaml:"extract"`
	Output  OutputConfig  `json:"output" yaml:"output"`

	// TemplatesFile optionally overrides the built-in query template set
	// with a YAML file of language-tagged templates.
	TemplatesFile string `json:"templates_file,omitempty" yaml:"templates_file,omitempty"`

	// Parallelism is the number of companies processed concurrently
	// (default 1; each company's query/fetch sequence stays sequential).
	Parallelism int `json:"parallelism" yaml:"parallelism"`
}

// ApplyDefaults fills zero-valued settings with pipeline defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Search.Timeout == 0 {
		c.Search.Timeout = 20 * time.Second
	}
	if c.Search.MaxURLsPerQuery == 0 {
		c.Search.MaxURLsPerQuery = 10
	}
	if c.Search.InterQueryDelay == 0 {
		c.Search.InterQueryDelay = 3 * time.Second
	}
	if c.Search.MaxRetries == 0 {
		c.Search.MaxRetries = 3
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.MaxBodyBytes == 0 {
		c.Fetch.MaxBodyBytes = 10 << 20
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Extract.MaxSnippetLen == 0 {
		c.Extract.MaxSnippetLen = 280
	}
	if c.Extract.MaxSnippetsPerDoc == 0 {
		c.Extract.MaxSnippetsPerDoc = 3
	}
	if c.Output.OutDir == "" {
		c.Output.OutDir = "out"
	}
	if c.Output.MasterCSV == "" {
		c.Output.MasterCSV = joinOut(c.Output.OutDir, "master_evidence.csv")
	}
	if c.Parallelism == 0 {
		c.Parallelism = 1
	}
	ua := "evidence-pipeline/0.1 (+https://example.org/methods)"
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = ua
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = ua
	}
}

func joinOut(dir, name string) string {
	if dir == "" {
		dir = "out"
	}
	return filepath.Join(dir, name)
}
