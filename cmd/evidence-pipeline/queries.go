// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-pipeline/internal/query"
	"github.com/pdiddy/evidence-pipeline/internal/roster"
)

var queriesCmd = &cobra.Command{
	Use:   "queries <companies.csv>",
	Short: "Print the generated search queries without running them",
	Long: `Queries expands the query templates for every company in the roster and
prints the result, one query per line. No network requests are made; use it
to check template substitutions and for methods write-ups.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueries,
}

func init() {
	queriesCmd.Flags().String("templates", "", "YAML file overriding the built-in query templates")

	rootCmd.AddCommand(queriesCmd)
}

func runQueries(cmd *cobra.Command, args []string) error {
	companies, err := roster.Load(args[0])
	if err != nil {
		return err
	}

	templates := query.DefaultTemplates
	if path, _ := cmd.Flags().GetString("templates"); path != "" {
		if templates, err = query.LoadTemplates(path); err != nil {
			return err
		}
	}
	gen, err := query.NewGenerator(templates)
	if err != nil {
		return err
	}

	for _, company := range companies {
		fmt.Printf("# %s (%s)\n", company.Name, company.Domain)
		for _, q := range gen.ForCompany(company) {
			fmt.Println(q.Text)
		}
	}
	fmt.Printf("# %d companies x %d templates = %d queries\n",
		len(companies), gen.Count(), len(companies)*gen.Count())
	return nil
}
