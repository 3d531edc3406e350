// Copyright HCSS Utils, 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hcss-utils/scholar-query-splitter/internal/oracle"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

var countCmd = &cobra.Command{
	Use:   "count [query]",
	Short: "Issue a single hit-count probe for a query",
	Long: `Count sends one probe to the hit-count oracle and prints the result.
Useful for checking whether a base query needs splitting at all, and for
verifying proxy and delay settings before a long run.`,
	RunE: runCount,
}

func init() {
	countCmd.Flags().Int("start-year", 0, "first publication year, inclusive")
	countCmd.Flags().Int("end-year", 0, "last publication year, inclusive")
	countCmd.Flags().Bool("simulate", false, "use the deterministic simulated oracle (no network)")
	countCmd.Flags().String("proxy", "", "proxy URL for oracle requests, or \"scraperapi\" to use the stored key")
	countCmd.Flags().Duration("min-delay", 0, "minimum politeness delay (default 5s)")
	countCmd.Flags().Duration("max-delay", 0, "maximum politeness delay (default 15s)")
	countCmd.Flags().Float64("requests-per-minute", 0, "sustained oracle call rate cap")

	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide a query to count")
	}
	query := strings.Join(args, " ")

	cfg, err := oracleConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	var counter oracle.Counter
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		counter = oracle.NewSimulatedCounter()
	} else {
		sc, err := oracle.NewScholarCounter(cfg, oracle.NewPacer(cfg))
		if err != nil {
			return err
		}
		counter = sc
	}

	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	spec := types.QuerySpec{Base: query, YearStart: startYear, YearEnd: endYear}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := counter.Count(ctx, spec)
	if err != nil {
		return err
	}

	if !res.Resolved() {
		return fmt.Errorf("count unresolved: %s", res.Status)
	}
	fmt.Fprintf(os.Stdout, "%s: %d hits\n", spec.QueryText(), res.Count)
	return nil
}
