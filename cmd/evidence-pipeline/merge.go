// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-pipeline/internal/report"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge per-company evidence CSVs into a master dataset",
	Long: `Merge concatenates every *_evidence.csv under the output csv/ area into
one master CSV. Each input file's header must match the evidence schema
exactly; a mismatch aborts the merge naming the offending file and column.`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("out", "out", "output directory holding the csv/ area")
	mergeCmd.Flags().String("master", "", "master CSV path (default <out>/master_evidence.csv)")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	var out types.OutputConfig
	out.OutDir, _ = cmd.Flags().GetString("out")
	out.MasterCSV, _ = cmd.Flags().GetString("master")

	cfg := types.PipelineConfig{Output: out}
	cfg.ApplyDefaults()

	stats, err := report.Merge(cfg.Output.CSVDir(), cfg.Output.MasterCSV)
	if err != nil {
		return err
	}

	fmt.Printf("Master dataset created: %s\n", cfg.Output.MasterCSV)
	fmt.Printf("Files merged: %d\n", stats.Files)
	fmt.Printf("Total evidence rows: %d\n", stats.Rows)
	fmt.Printf("Companies: %d\n", stats.Companies)
	fmt.Printf("Non-empty evidence quotes: %d\n", stats.NonEmptyQuotes)
	return nil
}
