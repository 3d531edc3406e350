// Copyright HCSS Utils, 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hcss-utils/scholar-query-splitter/internal/openalex"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [query]",
	Short: "Download work metadata from OpenAlex",
	Long: `Fetch downloads work metadata matching a query from the OpenAlex API
using cursor pagination and writes the corpus to the JSON directory. The
downloaded titles and abstracts are the raw material for candidate modifier
extraction.

Provide an email via --email or .secrets/openalex-email to join the polite
pool, which gets faster and more reliable responses.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Int("start-year", 0, "first publication year, inclusive")
	fetchCmd.Flags().Int("end-year", 0, "last publication year, inclusive")
	fetchCmd.Flags().Int("max-results", 0, "maximum works to download (default 5000)")
	fetchCmd.Flags().String("email", "", "contact email for the OpenAlex polite pool")
	fetchCmd.Flags().String("json-dir", "json", "directory for downloaded metadata files")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide a query to fetch metadata for")
	}
	query := strings.Join(args, " ")

	email, _ := cmd.Flags().GetString("email")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	jsonDir, _ := cmd.Flags().GetString("json-dir")

	cfg := types.FetchConfig{
		Email:      secretDefault("openalex-email", email),
		MaxResults: maxResults,
		JSONDir:    jsonDir,
	}.WithFetchDefaults()

	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	downloader := openalex.NewDownloader(cfg)
	corpus, err := downloader.Download(ctx, query, startYear, endYear, os.Stdout)
	if err != nil {
		return err
	}

	path, err := downloader.SaveCorpus(corpus)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Saved %d works to %s\n", len(corpus.Results), path)
	return nil
}
