// Copyright HCSS Utils, 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hcss-utils/scholar-query-splitter/internal/modifiers"
	"github.com/hcss-utils/scholar-query-splitter/internal/oracle"
	"github.com/hcss-utils/scholar-query-splitter/internal/splitter"
	"github.com/hcss-utils/scholar-query-splitter/internal/store"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// scraperAPIProxy is the connect address for ScraperAPI's proxy mode; the API
// key goes in the username slot.
const scraperAPIProxy = "http://scraperapi:%s@proxy-server.scraperapi.com:8001"

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Decompose a base query into sub-queries under the target size",
	Long: `Split counts the base query's hits for every year in the range, and for
years over the target size probes candidate modifiers against the hit-count
oracle to build a set of narrower AND / AND NOT sub-queries that together
cover the base result set.

Progress and per-year coverage are printed as the run proceeds. Results are
written to the output directory as a CSV query list and a YAML report.
Completed years are persisted; an interrupted run resumes where it left off.`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().String("query", "", "boolean base query to decompose (required)")
	splitCmd.Flags().Int("start-year", 0, "first publication year, inclusive (required)")
	splitCmd.Flags().Int("end-year", 0, "last publication year, inclusive (required)")
	splitCmd.Flags().Int("target-size", 0, "maximum hits per sub-query (default 900)")
	splitCmd.Flags().Int("sample-size", 0, "top candidates of each kind to probe (default 30)")
	splitCmd.Flags().Int("max-queries", 0, "maximum sub-queries per year (default 50)")
	splitCmd.Flags().Int("max-depth", 0, "maximum modifiers combined per query (default 3)")
	splitCmd.Flags().String("modifiers-file", "", "JSON file of candidate keywords and entities")
	splitCmd.Flags().String("output-dir", "outputs/exhaustive", "directory for the query list and report")
	splitCmd.Flags().String("state-dir", "outputs/exhaustive", "directory for the resumable run state database")
	splitCmd.Flags().Bool("fresh", false, "ignore persisted state and recompute every year")
	splitCmd.Flags().Bool("simulate", false, "use the deterministic simulated oracle (no network)")
	splitCmd.Flags().String("proxy", "", "proxy URL for oracle requests, or \"scraperapi\" to use the stored key")
	splitCmd.Flags().Duration("min-delay", 0, "minimum politeness delay between oracle calls (default 5s)")
	splitCmd.Flags().Duration("max-delay", 0, "maximum politeness delay between oracle calls (default 15s)")
	splitCmd.Flags().Float64("requests-per-minute", 0, "sustained oracle call rate cap (0 = politeness delay only)")

	_ = splitCmd.MarkFlagRequired("query")
	_ = splitCmd.MarkFlagRequired("start-year")
	_ = splitCmd.MarkFlagRequired("end-year")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	splitCfg, err := splitConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	oracleCfg, err := oracleConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	modifiersFile, _ := cmd.Flags().GetString("modifiers-file")
	var candidates []types.Modifier
	if modifiersFile != "" {
		set, err := modifiers.Load(modifiersFile)
		if err != nil {
			return err
		}
		set = set.Filter(splitCfg.BaseQuery)
		candidates = set.Merged()
		fmt.Fprintf(os.Stderr, "Loaded %d candidate modifiers (%d keywords, %d entities)\n",
			len(candidates), len(set.Keywords), len(set.Entities))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	simulate, _ := cmd.Flags().GetBool("simulate")

	var runStore *store.Store
	if !simulate {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		runStore, err = store.Open(stateDir)
		if err != nil {
			return err
		}
		defer runStore.Close()
	}

	counter, err := buildCounter(cmd, oracleCfg, runStore)
	if err != nil {
		return err
	}

	var yearStore splitter.YearStore
	fresh, _ := cmd.Flags().GetBool("fresh")
	if runStore != nil && !fresh {
		yearStore = runStore
	}

	report, runErr := splitter.Run(ctx, counter, candidates, splitCfg, yearStore, os.Stdout)

	// Write whatever was produced even on cancellation so partial work is
	// not lost; the stored state makes the next run cheap regardless.
	if len(report.Years) > 0 {
		if err := writeOutputs(splitCfg.OutputDir, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(os.Stdout, "\n%d queries across %d years, %.1f%% overall coverage\n",
		report.TotalQueries, len(report.Years), report.OverallCoverage*100)
	if len(report.IncompleteYears) > 0 {
		fmt.Fprintf(os.Stdout, "incomplete years: %v\n", report.IncompleteYears)
	}
	return nil
}

func splitConfigFromFlags(cmd *cobra.Command) (types.SplitConfig, error) {
	query, _ := cmd.Flags().GetString("query")
	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	targetSize, _ := cmd.Flags().GetInt("target-size")
	sampleSize, _ := cmd.Flags().GetInt("sample-size")
	maxQueries, _ := cmd.Flags().GetInt("max-queries")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	cfg := types.SplitConfig{
		BaseQuery:  query,
		StartYear:  startYear,
		EndYear:    endYear,
		TargetSize: targetSize,
		SampleSize: sampleSize,
		MaxQueries: maxQueries,
		MaxDepth:   maxDepth,
		OutputDir:  outputDir,
	}.WithSplitDefaults()

	return cfg, cfg.Validate()
}

func oracleConfigFromFlags(cmd *cobra.Command) (types.OracleConfig, error) {
	minDelay, _ := cmd.Flags().GetDuration("min-delay")
	maxDelay, _ := cmd.Flags().GetDuration("max-delay")
	rpm, _ := cmd.Flags().GetFloat64("requests-per-minute")

	cfg := types.OracleConfig{
		MinDelay:          minDelay,
		MaxDelay:          maxDelay,
		RequestsPerMinute: rpm,
	}

	proxy, _ := cmd.Flags().GetString("proxy")
	switch proxy {
	case "":
	case "scraperapi":
		key := secretDefault("scraperapi-key", "")
		if key == "" {
			return cfg, fmt.Errorf("proxy scraperapi requires .secrets/scraperapi-key")
		}
		cfg.ProxyURL = fmt.Sprintf(scraperAPIProxy, key)
	default:
		cfg.ProxyURL = proxy
	}

	return cfg.WithOracleDefaults(), nil
}

// buildCounter assembles the oracle stack: the scholar (or simulated) counter
// wrapped in the caching layer backed by the run state store. Simulated counts
// stay in memory so they never mix with real counts in the state database.
func buildCounter(cmd *cobra.Command, cfg types.OracleConfig, runStore *store.Store) (oracle.Counter, error) {
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		fmt.Fprintln(os.Stderr, "Using simulated hit counts (no oracle calls will be made)")
		return oracle.NewCachedCounter(oracle.NewSimulatedCounter(), nil), nil
	}
	sc, err := oracle.NewScholarCounter(cfg, oracle.NewPacer(cfg))
	if err != nil {
		return nil, err
	}
	return oracle.NewCachedCounter(sc, runStore), nil
}

func writeOutputs(dir string, report types.FinalReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	stamp := report.Timestamp.Format("20060102_150405")
	csvPath := filepath.Join(dir, fmt.Sprintf("query_list_%s.csv", stamp))
	reportPath := filepath.Join(dir, fmt.Sprintf("final_report_%s.yaml", stamp))

	if err := splitter.WriteQueryCSV(csvPath, report); err != nil {
		return err
	}
	if err := splitter.WriteReport(reportPath, report); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Query list written to %s\n", csvPath)
	fmt.Fprintf(os.Stdout, "Report written to %s\n", reportPath)
	return nil
}
