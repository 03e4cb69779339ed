package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// WriteMarkdown renders r and writes it to "<projectName>-report.md" under
// dir (spec §6: "output_dir: Where Phase 5 writes the Markdown report"),
// creating dir if needed. Returns the written path.
func WriteMarkdown(r *models.Report, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: creating output dir %s: %w", dir, err)
	}

	name := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(r.ProjectName), "_")
	if name == "" {
		name = "audit"
	}
	path := filepath.Join(dir, name+"-report.md")

	if err := os.WriteFile(path, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("report: writing %s: %w", path, err)
	}
	return path, nil
}
