package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sui-sentry/auditengine/pkg/version"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "auditengine",
	Short:   "Automated security audit engine for Move-family smart contracts",
	Version: version.Full(),
	Long: `auditengine drives a phased, multi-agent LLM pipeline over a Move source
tree: it indexes the project, runs structural analysis, scans every
function for vulnerabilities, verifies raw findings in grouped role-swap
calls, analyzes exploitability for confirmed high/critical findings, and
assembles a ranked Markdown report.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an AuditConfig YAML file (defaults built in if omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(auditCmd)
}

// Execute runs the root command; main delegates to this so os.Exit only
// happens at the top level.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
