// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates a full evidence-collection run: per-company
// query generation, backend search with diary-first recording, fetching,
// extraction, and CSV output. Companies run with bounded parallelism; the
// per-company query/fetch sequence stays sequential.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-pipeline/internal/backend"
	"github.com/pdiddy/evidence-pipeline/internal/diary"
	"github.com/pdiddy/evidence-pipeline/internal/extract"
	"github.com/pdiddy/evidence-pipeline/internal/fetch"
	"github.com/pdiddy/evidence-pipeline/internal/query"
	"github.com/pdiddy/evidence-pipeline/internal/report"
	"github.com/pdiddy/evidence-pipeline/internal/store"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// CompanySummary reports what one company's run produced.
type CompanySummary struct {
	Company      string         `json:"company"`
	Queries      int            `json:"queries"`
	URLsFetched  int            `json:"urls_fetched"`
	EvidenceRows int            `json:"evidence_rows"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	Failed       int            `json:"failed"`
	CSVPath      string         `json:"csv_path,omitempty"`
}

// RunSummary aggregates per-company summaries for a whole run.
type RunSummary struct {
	Companies    []CompanySummary `json:"companies"`
	QueriesUsed  int              `json:"queries_used"`
	URLsFetched  int              `json:"urls_fetched"`
	EvidenceRows int              `json:"evidence_rows"`
	Failed       int              `json:"failed"`
}

// Pipeline wires the run stages together. Build one with New and drive it
// with Run; Close releases the store and diary.
type Pipeline struct {
	cfg       types.PipelineConfig
	generator *query.Generator
	backend   backend.Backend
	quota     *backend.Quota
	diary     *diary.Diary
	store     *store.Store
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	logger    *zap.Logger

	// progressed flips once any query has been answered (live or replayed);
	// quota exhaustion before that is a configuration error, after it a
	// graceful stop.
	progressed atomic.Bool
}

// New builds a Pipeline from cfg. It validates templates and credentials and
// opens the output areas; any failure here is fatal before network activity.
func New(cfg types.PipelineConfig, logger *zap.Logger) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	templates := query.DefaultTemplates
	if cfg.TemplatesFile != "" {
		loaded, err := query.LoadTemplates(cfg.TemplatesFile)
		if err != nil {
			return nil, err
		}
		templates = loaded
	}
	generator, err := query.NewGenerator(templates)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Search.Timeout}
	be, err := backend.FromConfig(cfg.Search, client)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Output.RawDir())
	if err != nil {
		return nil, err
	}
	dy, err := diary.Open(cfg.Output.LogDir())
	if err != nil {
		st.Close()
		return nil, err
	}
	extractor, err := extract.New(cfg.Extract)
	if err != nil {
		st.Close()
		dy.Close()
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.MetaDir(), 0o755); err != nil {
		st.Close()
		dy.Close()
		return nil, fmt.Errorf("creating meta directory: %w", err)
	}

	return &Pipeline{
		cfg:       cfg,
		generator: generator,
		backend:   be,
		quota:     backend.NewQuota(cfg.Search.MaxQueriesPerRun),
		diary:     dy,
		store:     st,
		fetcher:   fetch.New(cfg.Fetch, st, logger),
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Close releases the store and diary.
func (p *Pipeline) Close() error {
	err := p.diary.Close()
	if cerr := p.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run processes every company and returns the aggregated summary. Companies
// run concurrently up to cfg.Parallelism. Per-URL failures are counted, not
// fatal; only quota exhaustion before any progress aborts the run.
func (p *Pipeline) Run(ctx context.Context, companies []types.Company) (*RunSummary, error) {
	summaries := make([]CompanySummary, len(companies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for i, company := range companies {
		g.Go(func() error {
			summary, err := p.runCompany(gctx, company)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run := &RunSummary{Companies: summaries}
	for _, s := range summaries {
		run.QueriesUsed += s.Queries
		run.URLsFetched += s.URLsFetched
		run.EvidenceRows += s.EvidenceRows
		run.Failed += s.Failed
	}
	return run, nil
}

func (p *Pipeline) runCompany(ctx context.Context, company types.Company) (CompanySummary, error) {
	summary := CompanySummary{Company: company.Name, Skipped: make(map[string]int)}
	log := p.logger.With(zap.String("company", company.Name))

	// Each URL is fetched and extracted once per company, but its rows are
	// emitted for every query that surfaced it, so the CSV accounts for
	// each query's results.
	type urlOutcome struct {
		rows []report.Row
		err  error
	}
	processed := make(map[string]urlOutcome)
	var rows []report.Row

	for _, q := range p.generator.ForCompany(company) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		urls, replayed, err := p.resolveQuery(ctx, company, q.Text)
		if errors.Is(err, backend.ErrQuotaExceeded) {
			if !p.progressed.Load() {
				return summary, fmt.Errorf("query quota exhausted before any progress: %w", err)
			}
			log.Warn("query quota exhausted, finishing with gathered results",
				zap.String("query", q.Text))
			break
		}
		if err != nil {
			log.Warn("query failed", zap.String("query", q.Text), zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Queries++
		p.progressed.Store(true)

		for _, u := range urls {
			out, seen := processed[u]
			if !seen {
				companyRows, err := p.processURL(ctx, company, q.Text, u)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return summary, err
					}
					if reason, ok := fetch.IsSkip(err); ok {
						summary.Skipped[string(reason)]++
						log.Debug("url skipped", zap.String("url", u), zap.String("reason", string(reason)))
					} else {
						summary.Failed++
						log.Warn("url failed", zap.String("url", u), zap.Error(err))
					}
				} else {
					summary.URLsFetched++
				}
				out = urlOutcome{rows: companyRows, err: err}
				processed[u] = out
			}
			if out.err == nil {
				rows = append(rows, out.rows...)
			}
		}

		if !replayed {
			if err := p.pause(ctx); err != nil {
				return summary, err
			}
		}
	}

	path, err := report.WriteCompanyCSV(p.cfg.Output.CSVDir(), company.Slug(), rows)
	if err != nil {
		return summary, err
	}
	summary.CSVPath = path
	summary.EvidenceRows = len(rows)
	log.Info("company done",
		zap.Int("queries", summary.Queries),
		zap.Int("urls_fetched", summary.URLsFetched),
		zap.Int("evidence_rows", summary.EvidenceRows),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// resolveQuery answers a query from the diary when it was already executed,
// otherwise takes a quota slot, runs the backend, and records the outcome in
// the diary before any fetching starts. replayed reports whether the answer
// came from the diary.
func (p *Pipeline) resolveQuery(ctx context.Context, company types.Company, queryText string) (urls []string, replayed bool, err error) {
	entry, seen, err := p.diary.Seen(company, queryText, p.backend.Name())
	if err != nil {
		return nil, false, err
	}
	if seen {
		p.progressed.Store(true)
		return entry.ResultURLs, true, nil
	}

	if err := p.quota.Take(); err != nil {
		// Best effort: a quota stop mid-run still leaves a diary trace.
		if p.progressed.Load() {
			_ = p.diary.Record(company, types.DiaryEntry{
				Query:     queryText,
				Company:   company.Name,
				Backend:   p.backend.Name(),
				Timestamp: time.Now().UTC(),
				Error:     err.Error(),
			})
		}
		return nil, false, err
	}

	result, execErr := p.backend.Execute(ctx, queryText, p.cfg.Search)
	record := types.DiaryEntry{
		Query:      queryText,
		Company:    company.Name,
		Backend:    p.backend.Name(),
		Timestamp:  time.Now().UTC(),
		ResultURLs: result.URLs,
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	if err := p.diary.Record(company, record); err != nil {
		return nil, false, err
	}
	if execErr != nil {
		return nil, false, execErr
	}
	return result.URLs, false, nil
}

// processURL fetches one URL, extracts evidence, writes the metadata
// sidecar, and returns the CSV rows for it. A document with no snippets
// still yields one row with an empty quote.
func (p *Pipeline) processURL(ctx context.Context, company types.Company, queryText, targetURL string) ([]report.Row, error) {
	doc, err := p.fetcher.Fetch(ctx, targetURL, company.Name)
	if err != nil {
		return nil, err
	}

	body, err := p.fetcher.ReadBody(doc)
	if err != nil {
		return nil, err
	}
	meta, snippets := p.extractor.Extract(company.Name, *doc, body)
	date := extract.PickDate(meta.PubdateCandidates)

	if err := p.writeSidecar(company, queryText, *doc, meta, date); err != nil {
		p.logger.Warn("sidecar write failed", zap.String("url", targetURL), zap.Error(err))
	}

	if len(snippets) == 0 {
		return []report.Row{report.NewRow(company, types.EvidenceSnippet{}, *doc, meta.Title, date)}, nil
	}
	rows := make([]report.Row, 0, len(snippets))
	for _, snip := range snippets {
		rows = append(rows, report.NewRow(company, snip, *doc, meta.Title, date))
	}
	return rows, nil
}

func (p *Pipeline) writeSidecar(company types.Company, queryText string, doc types.RawDocument, meta types.DocumentMetadata, date string) error {
	host := ""
	if u, err := url.Parse(doc.URL); err == nil {
		host = u.Hostname()
	}
	sidecar := extract.Sidecar{
		Company:     company.Name,
		Query:       queryText,
		Title:       meta.Title,
		URL:         doc.URL,
		FinalURL:    doc.FinalURL,
		Host:        host,
		Pubdate:     date,
		ContentType: doc.ContentType,
		SHA256:      doc.ContentHash,
		FetchedAt:   doc.FetchedAt.UTC().Format(time.RFC3339),
		IsPDF:       doc.IsPDF(),
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}
	name := extract.SidecarName(company.Slug(), host, doc.ContentHash)
	return os.WriteFile(filepath.Join(p.cfg.Output.MetaDir(), name), data, 0o644)
}

// pause sleeps InterQueryDelay between live backend queries, honoring
// cancellation.
func (p *Pipeline) pause(ctx context.Context) error {
	if p.cfg.Search.InterQueryDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.Search.InterQueryDelay):
		return nil
	}
}

// Print writes a human-readable run summary.
func (s *RunSummary) Print(w io.Writer) {
	for _, c := range s.Companies {
		fmt.Fprintf(w, "%s: %d queries, %d urls fetched, %d evidence rows, %d failed",
			c.Company, c.Queries, c.URLsFetched, c.EvidenceRows, c.Failed)
		if len(c.Skipped) > 0 {
			reasons := make([]string, 0, len(c.Skipped))
			for reason := range c.Skipped {
				reasons = append(reasons, reason)
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(w, ", %d %s", c.Skipped[reason], reason)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "total: %d companies, %d queries, %d urls fetched, %d evidence rows, %d failed\n",
		len(s.Companies), s.QueriesUsed, s.URLsFetched, s.EvidenceRows, s.Failed)
}
