// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Template is a parameterized query string. Text may reference the
// {company} and {domain} placeholders; Lang tags the template language
// for the methods write-up ("fi", "en", or "mixed").
type Template struct {
	Lang string `yaml:"lang"`
	Text string `yaml:"text"`
}

// DefaultTemplates is the built-in query set targeting business-model
// evidence on SMB software company sites. Ordering is significant: the
// generator preserves it so reruns produce the same query sequence.
//
// Every template carries a site:{domain} restriction. The company-name
// templates restrict to the company's own domain as well, so no query can
// leak results from other domains.
var DefaultTemplates = []Template{
	// Core business model queries.
	{Lang: "mixed", Text: `site:{domain} "business model" OR "liiketoimintamalli"`},
	{Lang: "mixed", Text: `site:{domain} "revenue model" OR "tuottomalli"`},
	{Lang: "mixed", Text: `site:{domain} "pricing strategy" OR "hinnoittelustrategia"`},
	{Lang: "mixed", Text: `site:{domain} "value proposition" OR "arvolupaus"`},

	// Strategic content pages.
	{Lang: "mixed", Text: `site:{domain} inurl:about "strategy" OR "strategia"`},
	{Lang: "mixed", Text: `site:{domain} inurl:services "approach" OR "malli"`},
	{Lang: "mixed", Text: `site:{domain} "methodology" OR "menetelmä" OR "lähestymistapa"`},

	// Business model types, scoped to the company's own site.
	{Lang: "en", Text: `site:{domain} {company} "software as a service" OR "SaaS"`},
	{Lang: "en", Text: `site:{domain} {company} "business model" OR "competitive advantage"`},
	{Lang: "en", Text: `site:{domain} {company} "platform business" OR "consulting model"`},

	// High-value content.
	{Lang: "mixed", Text: `site:{domain} "case study" OR "asiakastarina" OR "referenssi"`},
	{Lang: "mixed", Text: `site:{domain} "partnerships" OR "kumppanuudet" OR "integraatiot"`},
}

// LoadTemplates reads a template set from a YAML file: a list of
// {lang, text} entries. Used to override DefaultTemplates per study.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file: %w", err)
	}
	var templates []Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parsing templates file %s: %w", path, err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("templates file %s is empty", path)
	}
	return templates, nil
}
