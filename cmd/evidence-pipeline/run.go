// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-pipeline/internal/pipeline"
	"github.com/pdiddy/evidence-pipeline/internal/roster"
	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <companies.csv>",
	Short: "Run the evidence-collection pipeline over a company roster",
	Long: `Run processes every company in the roster CSV: generates domain-restricted
queries, executes them against the configured search backend, fetches result
pages, extracts evidence snippets, and writes one evidence CSV per company
under the output directory.

Per-URL failures and skips are counted, not fatal: the run exits zero as long
as the configuration is valid and the query quota was not exhausted before any
progress. Already-answered queries are replayed from the query diary, so an
interrupted run can be resumed by running the same command again.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("out", "out", "output directory (raw/, meta/, logs/, csv/)")
	runCmd.Flags().String("backend", "", "search backend: google or bing (default: by available credentials)")
	runCmd.Flags().Int("max-urls", 0, "max result URLs kept per query (default 10)")
	runCmd.Flags().Int("quota", 0, "max backend queries for this run (default unlimited)")
	runCmd.Flags().Int("parallelism", 0, "companies processed concurrently (default 1)")
	runCmd.Flags().Duration("timeout", 0, "per-request HTTP timeout (default 20s)")
	runCmd.Flags().Duration("delay", 0, "pause between backend queries (default 3s)")
	runCmd.Flags().String("templates", "", "YAML file overriding the built-in query templates")
	runCmd.Flags().String("keywords", "", "YAML file overriding the built-in evidence keywords")
	runCmd.Flags().Bool("skip-robots", false, "do not consult robots.txt before fetching")
	runCmd.Flags().Bool("verbose", false, "log at debug level")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	companies, err := roster.Load(args[0])
	if err != nil {
		return err
	}

	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Processing %d companies\n", len(companies))
	summary, err := p.Run(ctx, companies)
	if err != nil {
		return err
	}
	summary.Print(os.Stdout)
	return nil
}

// buildConfig assembles the pipeline configuration from flags, the viper
// config file / environment, and the secrets directory. Credential and
// backend validation happens in pipeline.New before any network activity.
func buildConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig

	cfg.Output.OutDir, _ = cmd.Flags().GetString("out")
	cfg.Search.MaxURLsPerQuery, _ = cmd.Flags().GetInt("max-urls")
	cfg.Search.MaxQueriesPerRun, _ = cmd.Flags().GetInt("quota")
	cfg.Parallelism, _ = cmd.Flags().GetInt("parallelism")
	cfg.Search.InterQueryDelay, _ = cmd.Flags().GetDuration("delay")
	cfg.TemplatesFile, _ = cmd.Flags().GetString("templates")
	cfg.Extract.KeywordsFile, _ = cmd.Flags().GetString("keywords")
	cfg.Fetch.SkipRobots, _ = cmd.Flags().GetBool("skip-robots")

	timeout, _ := cmd.Flags().GetDuration("timeout")
	cfg.Search.Timeout = timeout
	cfg.Fetch.Timeout = timeout

	cfg.Search.GoogleAPIKey = secretDefault("google-api-key", "")
	cfg.Search.GoogleCX = secretDefault("google-cx", "")
	cfg.Search.BingAPIKey = secretDefault("bing-api-key", "")

	// An explicit backend choice drops the other backend's credentials so
	// selection-by-credentials picks the requested one.
	switch backendName, _ := cmd.Flags().GetString("backend"); backendName {
	case "":
	case "google":
		cfg.Search.BingAPIKey = ""
	case "bing":
		cfg.Search.GoogleAPIKey = ""
		cfg.Search.GoogleCX = ""
	default:
		return cfg, fmt.Errorf("unknown backend %q (want google or bing)", backendName)
	}

	return cfg, nil
}

func buildLogger(cmd *cobra.Command) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return logCfg.Build()
}
