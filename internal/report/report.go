// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes per-company evidence CSVs and merges them into a
// master dataset. The column schema is fixed: downstream manual coding
// depends on exact header names, so both the writer and the merger treat
// any deviation as an error.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// Columns is the evidence CSV header. The first six columns are filled by
// the pipeline; the rest are manual-coding columns emitted with template
// defaults for the analyst to fill in.
var Columns = []string{
	"Company", "Date", "SearchKeyword", "URL", "EvidenceQuote", "ContentHash",
	"Country", "Website", "SourceType", "SourceTitle",
	"ModelCategory", "RevenueMix", "PricingModel",
	"ProductizationLevel", "RiskSharingLevel", "DeliveryModel",
	"IPOSSStrategy", "Differentiators", "HardToCopyFactors",
	"ValueMechanisms", "CustomerSegments", "Geographies",
	"EvidenceStrength", "AnalystConfidence", "Notes",
}

// Row is one evidence CSV row. An empty EvidenceQuote means the document
// was searched and fetched but yielded no keyword evidence.
type Row struct {
	Company           string
	Date              string
	SearchKeyword     string
	URL               string
	EvidenceQuote     string
	ContentHash       string
	Country           string
	Website           string
	SourceType        string
	SourceTitle       string
	EvidenceStrength  int
	AnalystConfidence int
}

// NewRow builds a Row for one (document, snippet) pair with the coding
// template defaults: evidence strength 3 when a quote is present, 2 for a
// fetched-but-quoteless document, analyst confidence 2. date is the
// already-resolved pubdate (YYYY-MM-DD or empty).
func NewRow(company types.Company, snippet types.EvidenceSnippet, doc types.RawDocument, title, date string) Row {
	strength := 2
	if snippet.Quote != "" {
		strength = 3
	}
	return Row{
		Company:           company.Name,
		Date:              date,
		SearchKeyword:     snippet.Keyword,
		URL:               doc.URL,
		EvidenceQuote:     snippet.Quote,
		ContentHash:       doc.ContentHash,
		Country:           company.Country,
		Website:           "https://" + company.Domain,
		SourceType:        SourceTypeFor(doc.URL),
		SourceTitle:       title,
		EvidenceStrength:  strength,
		AnalystConfidence: 2,
	}
}

// SourceTypeFor classifies a URL host into the coding template's source
// categories.
func SourceTypeFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "Website"
	}
	host := u.Hostname()
	switch {
	case strings.Contains(host, "linkedin.com"):
		return "LinkedIn"
	case strings.Contains(host, "github.com"):
		return "GitHub"
	case strings.Contains(host, "hilma") || strings.Contains(host, "hankintailmoitukset"):
		return "Public procurement"
	case strings.Contains(host, "prh.fi") || strings.Contains(host, "ytj.fi"):
		return "Registry"
	default:
		return "Website"
	}
}

func (r Row) record() []string {
	return []string{
		r.Company, r.Date, r.SearchKeyword, r.URL, r.EvidenceQuote, r.ContentHash,
		r.Country, r.Website, r.SourceType, r.SourceTitle,
		"", "", "", // ModelCategory, RevenueMix, PricingModel
		"0", "0", "", // ProductizationLevel, RiskSharingLevel, DeliveryModel
		"", "", "", // IPOSSStrategy, Differentiators, HardToCopyFactors
		"", "", "", // ValueMechanisms, CustomerSegments, Geographies
		strconv.Itoa(r.EvidenceStrength), strconv.Itoa(r.AnalystConfidence), "",
	}
}

// FileName returns the per-company CSV filename for a company slug.
func FileName(companySlug string) string {
	return companySlug + "_evidence.csv"
}

// WriteCompanyCSV writes rows to <dir>/<slug>_evidence.csv via a temp file
// and rename, so a rerun never leaves a half-written file behind. Rows are
// written in the order given; callers pass them in query execution order,
// which makes reruns of an unchanged diary byte-stable.
func WriteCompanyCSV(dir, companySlug string, rows []Row) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating csv directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".evidence-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.record()); err != nil {
			tmp.Close()
			return "", fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp csv: %w", err)
	}

	path := filepath.Join(dir, FileName(companySlug))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming csv into place: %w", err)
	}
	return path, nil
}

// MergeStats summarizes a merge run.
type MergeStats struct {
	Files          int `json:"files"`
	Rows           int `json:"rows"`
	Companies      int `json:"companies"`
	NonEmptyQuotes int `json:"non_empty_quotes"`
}

// Merge concatenates every *_evidence.csv under csvDir into a master CSV at
// outPath. Each input file's header must match Columns exactly; a mismatch
// aborts the merge naming the file and the offending column. Files are
// merged in lexical order so the master file is stable across reruns.
func Merge(csvDir, outPath string) (MergeStats, error) {
	var stats MergeStats

	paths, err := filepath.Glob(filepath.Join(csvDir, "*_evidence.csv"))
	if err != nil {
		return stats, fmt.Errorf("listing evidence csvs: %w", err)
	}
	if len(paths) == 0 {
		return stats, fmt.Errorf("no evidence csv files found in %s", csvDir)
	}
	sort.Strings(paths)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return stats, fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".master-*.tmp")
	if err != nil {
		return stats, fmt.Errorf("creating temp master csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return stats, fmt.Errorf("writing master header: %w", err)
	}

	companies := make(map[string]bool)
	for _, path := range paths {
		if err := mergeFile(path, w, &stats, companies); err != nil {
			tmp.Close()
			return stats, err
		}
		stats.Files++
	}
	stats.Companies = len(companies)

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return stats, fmt.Errorf("flushing master csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return stats, fmt.Errorf("closing temp master csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return stats, fmt.Errorf("renaming master csv into place: %w", err)
	}
	return stats, nil
}

func mergeFile(path string, w *csv.Writer, stats *MergeStats, companies map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", filepath.Base(path), err)
	}
	if err := validateHeader(header); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing master row: %w", err)
		}
		stats.Rows++
		companies[record[0]] = true
		if strings.TrimSpace(record[4]) != "" {
			stats.NonEmptyQuotes++
		}
	}
	return nil
}

func validateHeader(header []string) error {
	if len(header) != len(Columns) {
		return fmt.Errorf("header has %d columns, want %d", len(header), len(Columns))
	}
	for i, col := range Columns {
		if header[i] != col {
			return fmt.Errorf("header column %d is %q, want %q", i, header[i], col)
		}
	}
	return nil
}
