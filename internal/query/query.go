// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query expands query templates into concrete, domain-restricted
// search queries. Generation is deterministic and side-effect free: the same
// roster and template set always yield the same query sequence, so diary
// replay stays meaningful.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// placeholderRe matches {name} placeholder tokens in template text.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// GeneratedQuery is one concrete query for one company.
type GeneratedQuery struct {
	Company  types.Company
	Template Template
	Text     string
}

// Generator expands a validated template set per company.
type Generator struct {
	templates []Template
}

// NewGenerator validates the template set and returns a Generator.
// A template referencing a placeholder other than {company} or {domain},
// or lacking a site:{domain} restriction, is a configuration error.
func NewGenerator(templates []Template) (*Generator, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("no query templates configured")
	}
	for i, tmpl := range templates {
		for _, m := range placeholderRe.FindAllStringSubmatch(tmpl.Text, -1) {
			switch m[1] {
			case "company", "domain":
			default:
				return nil, fmt.Errorf("template %d: undefined placeholder {%s}", i+1, m[1])
			}
		}
		if !strings.Contains(tmpl.Text, "site:{domain}") {
			return nil, fmt.Errorf("template %d: missing site:{domain} restriction", i+1)
		}
	}
	return &Generator{templates: templates}, nil
}

// ForCompany returns the ordered query sequence for c, one query per
// template in template order.
func (g *Generator) ForCompany(c types.Company) []GeneratedQuery {
	queries := make([]GeneratedQuery, 0, len(g.templates))
	for _, tmpl := range g.templates {
		text := strings.ReplaceAll(tmpl.Text, "{company}", c.Name)
		text = strings.ReplaceAll(text, "{domain}", c.Domain)
		queries = append(queries, GeneratedQuery{Company: c, Template: tmpl, Text: text})
	}
	return queries
}

// Count returns the number of templates, i.e. queries generated per company.
func (g *Generator) Count() int {
	return len(g.templates)
}
