// Package main provides the trialrag command: it prepares a clinical trial
// corpus for a LightRAG server and evaluates retrieval against labelled
// topics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trialrag",
		Short: "Clinical trial corpus preparation and retrieval evaluation",
		Long: `trialrag fetches eligibility criteria from an AACT database, renders
one document per trial, indexes the documents in a LightRAG server and
scores retrieval answers against labelled topics.

Run 'trialrag fetch' to build the merged trial table.
Run 'trialrag ingest' to index it and 'trialrag evaluate' to score retrieval.
Run 'trialrag events' to inspect the events a run published.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("env-file", ".env", "environment file loaded before the process environment")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		countCmd(),
		fetchCmd(),
		ingestCmd(),
		evaluateCmd(),
		serveCmd(),
		eventsCmd(),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trialrag %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
