// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roster loads and validates the company roster that bounds every
// query the pipeline issues.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// defaultCountry is applied when the roster leaves the country column empty.
const defaultCountry = "FI"

// Load reads a companies CSV with header "company,domain,country,notes".
// Company and domain are required on every row; domains must be unique.
// Any violation is a configuration error and aborts before network activity.
func Load(path string) ([]types.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster %s: %w", path, err)
	}
	defer f.Close()

	companies, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return companies, nil
}

// Parse reads roster rows from r. Column order is fixed by the header;
// unknown extra columns are ignored so the roster can carry annotations.
func Parse(r io.Reader) ([]types.Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"company", "domain"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var companies []types.Company
	seen := make(map[string]string) // domain → company name
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}

		c := types.Company{
			Name:    field(record, "company"),
			Domain:  strings.ToLower(field(record, "domain")),
			Country: field(record, "country"),
			Notes:   field(record, "notes"),
		}
		if c.Name == "" || c.Domain == "" {
			return nil, fmt.Errorf("row %d: company and domain are required", line)
		}
		if prev, dup := seen[c.Domain]; dup {
			return nil, fmt.Errorf("row %d: duplicate domain %q (already used by %s)", line, c.Domain, prev)
		}
		seen[c.Domain] = c.Name
		if c.Country == "" {
			c.Country = defaultCountry
		}
		companies = append(companies, c)
	}

	if len(companies) == 0 {
		return nil, fmt.Errorf("no companies in roster")
	}
	return companies, nil
}
