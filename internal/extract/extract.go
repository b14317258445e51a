// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract derives document metadata and keyword-anchored evidence
// snippets from fetched documents. Extraction is deterministic and
// best-effort: malformed documents degrade to empty metadata and no
// snippets, never to an error that would abort the run.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// pubdateMetaKeys lists meta tag names/properties checked for publication
// dates, in priority order (structured markup first).
var pubdateMetaKeys = []string{
	"article:published_time",
	"og:updated_time",
	"date",
	"dc.date",
	"dc.date.issued",
	"publication_date",
}

// isoDateRe matches an ISO-style date prefix (YYYY-MM-DD).
var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Extractor scans documents for a configured keyword set.
type Extractor struct {
	keywords []string
	maxLen   int
	maxSnips int
}

// New builds an Extractor from cfg, loading the keyword override file when
// configured.
func New(cfg types.ExtractConfig) (*Extractor, error) {
	keywords := DefaultKeywords
	if cfg.KeywordsFile != "" {
		loaded, err := LoadKeywords(cfg.KeywordsFile)
		if err != nil {
			return nil, err
		}
		keywords = loaded
	}
	maxLen := cfg.MaxSnippetLen
	if maxLen <= 0 {
		maxLen = 280
	}
	maxSnips := cfg.MaxSnippetsPerDoc
	if maxSnips <= 0 {
		maxSnips = 3
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	return &Extractor{keywords: lowered, maxLen: maxLen, maxSnips: maxSnips}, nil
}

// Extract parses the document body and returns its metadata and evidence
// snippets. Non-HTML content (PDF, binary) yields metadata holding only
// the URL and no snippets; that is a normal outcome, not an error.
func (e *Extractor) Extract(company string, doc types.RawDocument, body []byte) (types.DocumentMetadata, []types.EvidenceSnippet) {
	meta := types.DocumentMetadata{URL: doc.URL}
	if !doc.IsHTML() {
		return meta, nil
	}

	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return meta, nil
	}

	meta.Title = strings.TrimSpace(parsed.Find("title").First().Text())
	meta.PubdateCandidates = pubdateCandidates(parsed)

	text := visibleText(parsed)
	if text == "" {
		return meta, nil
	}

	now := time.Now().UTC()
	var snippets []types.EvidenceSnippet
	seen := make(map[string]bool)
	for _, kw := range e.keywords {
		quote, ok := e.snippetFor(text, kw)
		if !ok || seen[quote] {
			continue
		}
		seen[quote] = true
		snippets = append(snippets, types.EvidenceSnippet{
			Company:     company,
			URL:         doc.URL,
			Keyword:     kw,
			Quote:       quote,
			ExtractedAt: now,
		})
		if len(snippets) >= e.maxSnips {
			break
		}
	}
	return meta, snippets
}

// PickDate returns the first ISO-looking pubdate candidate, truncated to
// YYYY-MM-DD, or "" when none qualify.
func PickDate(candidates []string) string {
	for _, c := range candidates {
		if isoDateRe.MatchString(c) {
			return c[:10]
		}
	}
	return ""
}

// pubdateCandidates collects date strings from meta tags (priority order)
// and <time> elements.
func pubdateCandidates(doc *goquery.Document) []string {
	var candidates []string
	for _, key := range pubdateMetaKeys {
		doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
			prop, _ := s.Attr("property")
			name, _ := s.Attr("name")
			if prop != key && name != key {
				return
			}
			if content, ok := s.Attr("content"); ok {
				if v := strings.TrimSpace(content); v != "" {
					candidates = append(candidates, v)
				}
			}
		})
	}
	doc.Find("time").Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("datetime")
		if !ok {
			v = s.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			candidates = append(candidates, v)
		}
	})
	return candidates
}

// visibleText strips script/style/noscript subtrees and returns the
// document's whitespace-collapsed visible text.
func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// snippetFor finds the first occurrence of keyword in text and cuts a
// window of at most maxLen bytes around it, extended to cover the whole
// matched word and trimmed outward to whole-word boundaries. Returns
// ok=false when the keyword does not occur or the window looks like
// navigation chrome rather than content.
func (e *Extractor) snippetFor(text, keyword string) (string, bool) {
	// Quotes are cut from the normalized (lower-cased) text, matching the
	// casing the keywords are matched against.
	text = strings.ToLower(text)

	idx := strings.Index(text, keyword)
	if idx < 0 {
		return "", false
	}

	// Grow the match to full word boundaries so the quote never splits
	// inside the matched token.
	matchStart := idx
	for matchStart > 0 && text[matchStart-1] != ' ' {
		matchStart--
	}
	matchEnd := idx + len(keyword)
	for matchEnd < len(text) && text[matchEnd] != ' ' {
		matchEnd++
	}
	if matchEnd-matchStart > e.maxLen {
		return "", false
	}

	// Center the window on the match, clamped to the text.
	space := e.maxLen - (matchEnd - matchStart)
	start := matchStart - space/2
	if start < 0 {
		start = 0
	}
	end := start + e.maxLen
	if end > len(text) {
		end = len(text)
		if start = end - e.maxLen; start < 0 {
			start = 0
		}
	}

	// Trim to word boundaries without cutting into the match.
	for start > 0 && text[start-1] != ' ' {
		start++
		if start > matchStart {
			start = matchStart
			break
		}
	}
	for end < len(text) && text[end] != ' ' {
		end--
		if end < matchEnd {
			end = matchEnd
			break
		}
	}

	quote := strings.TrimSpace(text[start:end])
	if quote == "" || looksLikeNavigation(quote) {
		return "", false
	}
	return quote, true
}

// navIndicators flag menu, footer, and boilerplate text that should never
// be quoted as evidence.
var navIndicators = []string{
	"siirry sisältöön", "avaa valikko", "sulje valikko", "skip to content",
	"main menu", "navigation", "sitemap", "breadcrumb",
	"copyright", "©", "all rights reserved", "privacy policy",
	"cookie policy", "terms of service",
}

// looksLikeNavigation detects navigation menus and boilerplate: indicator
// phrases, runs of very short words, or heavily repeated words.
func looksLikeNavigation(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range navIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	words := strings.Fields(text)
	if len(words) > 8 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		if total/len(words) < 4 {
			return true
		}
	}
	if len(words) > 5 {
		unique := make(map[string]bool, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = true
		}
		if float64(len(unique))/float64(len(words)) < 0.5 {
			return true
		}
	}
	return false
}

// Sidecar is the per-fetch metadata record written to the meta area,
// linking a fetch event to its query, content hash, and extracted fields.
type Sidecar struct {
	Company     string `json:"company"`
	Query       string `json:"query"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	Host        string `json:"host"`
	Pubdate     string `json:"pubdate"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
	FetchedAt   string `json:"fetched_at_utc"`
	IsPDF       bool   `json:"is_pdf"`
}

// SidecarName returns the meta-area filename for a fetch event.
func SidecarName(companySlug, host, hash string) string {
	return fmt.Sprintf("%s_%s_%s.json", companySlug, strings.ReplaceAll(host, ":", "_"), hash)
}
