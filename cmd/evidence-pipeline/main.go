// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the evidence-pipeline CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-pipeline/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault resolves a credential named by its secrets-dir filename
// (e.g. "google-api-key"): an explicit value wins, then the config file or
// environment (EVIDENCE_PIPELINE_GOOGLE_API_KEY) via viper, then the
// secrets dir.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v := viper.GetString(strings.ReplaceAll(key, "-", "_")); v != "" {
		return v
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the evidence-pipeline CLI.
var rootCmd = &cobra.Command{
	Use:   "evidence-pipeline",
	Short: "Collect web evidence of company business models",
	Long: `evidence-pipeline searches the public web for evidence about companies'
business models and assembles it into per-company CSVs for manual coding.

For each company in a roster it generates domain-restricted search queries,
runs them against Google Custom Search or Bing, fetches the result pages into
a content-addressed store, extracts keyword-anchored evidence snippets, and
writes one evidence CSV per company. The merge subcommand aggregates those
into a master dataset.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; a missing file is not an error.
		_ = godotenv.Load()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./evidence-pipeline.yaml or ~/.config/evidence-pipeline/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("evidence-pipeline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "evidence-pipeline"))
		}
	}

	viper.SetEnvPrefix("EVIDENCE_PIPELINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
