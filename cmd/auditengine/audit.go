package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/sui-sentry/auditengine/pkg/config"
	"github.com/sui-sentry/auditengine/pkg/engine"
	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

var (
	outputDir   string
	watch       bool
	projName    string
	weaviateURL string
)

var auditCmd = &cobra.Command{
	Use:   "audit <path>",
	Short: "Run a full six-phase security audit over a Move source tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the Markdown report to (overrides the config's output_dir)")
	auditCmd.Flags().BoolVar(&watch, "watch", false, "re-run the audit whenever a .move file under <path> changes")
	auditCmd.Flags().StringVar(&projName, "project-name", "", "project name for the report (defaults to the directory name)")
	auditCmd.Flags().StringVar(&weaviateURL, "weaviate-url", "", "Weaviate endpoint for vulnerability-pattern/exploit-example RAG lookups (omit to run without RAG)")
}

// buildVectorSearcher connects to the Weaviate instance at rawURL and wraps
// it in a WeaviateSearcher. An empty or invalid URL, or a failed client
// construction, degrades to nil rather than aborting the audit: RAG lookups
// are optional (spec §4.3).
func buildVectorSearcher(rawURL string) toolkit.VectorSearcher {
	if rawURL == "" {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		slog.Warn("invalid --weaviate-url, running without RAG", "url", rawURL, "error", err)
		return nil
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	if err != nil {
		slog.Error("failed to create weaviate client, running without RAG", "error", err)
		return nil
	}
	return toolkit.NewWeaviateSearcher(client, "VulnerabilityPattern", "ExploitExample")
}

func runAudit(cmd *cobra.Command, args []string) error {
	setupLogging()
	source := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	name := projName
	if name == "" {
		name = os.Getenv("AUDITENGINE_PROJECT_NAME")
	}
	if name == "" {
		name = source
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce := func() error {
		return runSingleAudit(ctx, cfg, source, name)
	}

	if !watch {
		return runOnce()
	}

	slog.Info("watch mode enabled, running initial audit", "path", source)
	if err := runOnce(); err != nil {
		slog.Error("initial audit failed", "error", err)
	}

	w, err := indexer.NewWatcher(source, func() {
		slog.Info("source tree changed, re-auditing", "path", source)
		if err := runOnce(); err != nil {
			slog.Error("audit failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watching %s: %w", source, err)
	}

	<-ctx.Done()
	return nil
}

func runSingleAudit(ctx context.Context, cfg *config.AuditConfig, source, name string) error {
	eng := engine.New(cfg, buildVectorSearcher(weaviateURL), func(phase int, percent float64, message string) {
		fmt.Fprintf(os.Stderr, "[phase %d] %3.0f%% %s\n", phase, percent, message)
	})
	defer eng.Close()

	report, err := eng.Audit(ctx, source, name)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	fmt.Printf("status: %s\n", report.Status)
	fmt.Printf("confirmed findings: %d (false positives filtered: %d)\n",
		report.Statistics.TotalConfirmed, report.Statistics.TotalFalsePositive)
	return nil
}

func loadConfig() (*config.AuditConfig, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}
