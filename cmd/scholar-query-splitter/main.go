// Copyright HCSS Utils, 2026. All rights reserved.

// Package main is the entry point for the scholar-query-splitter CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hcss-utils/scholar-query-splitter/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the scholar-query-splitter CLI.
var rootCmd = &cobra.Command{
	Use:   "scholar-query-splitter",
	Short: "Decompose oversized scholarly search queries into retrievable sub-queries",
	Long: `scholar-query-splitter works around the result caps of scholarly search
endpoints. Given a boolean base query whose hit count exceeds what the endpoint
will return, it probes candidate modifiers against a hit-count oracle, builds a
per-year set of narrower sub-queries that together cover the base result set,
and reports the estimated coverage.

Each pipeline stage is a subcommand: split runs the full decomposition, count
issues a single oracle probe, and fetch downloads work metadata from OpenAlex
for the generated sub-queries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./scholar-query-splitter.yaml or ~/.config/scholar-query-splitter/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scholar-query-splitter")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "scholar-query-splitter"))
		}
	}

	viper.SetEnvPrefix("SCHOLAR_QUERY_SPLITTER")
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
