// Package report renders an assembled Report as Markdown for Phase 5's
// output_dir (spec §6). Grounded on ihavespoons-zrok's
// internal/finding/export package: one Exporter per output format with a
// stdlib-string-building Export method; this module only ever needs the
// Markdown format, so the interface collapses to the two functions below.
package report

import (
	"fmt"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// RenderMarkdown builds the human-readable report body: a summary table
// followed by one section per finding that is not a false positive, ordered
// exactly as r.Findings (Phase 5 has already applied the final
// severity/confidence/id sort).
func RenderMarkdown(r *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Security Audit Report: %s\n\n", r.ProjectName)
	fmt.Fprintf(&b, "Status: **%s**\n\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", r.Error)
	}

	writeSummary(&b, r.Statistics)
	writeUsage(&b, r.TokenUsage)

	fmt.Fprintf(&b, "## Findings\n\n")
	shown := 0
	for _, f := range r.Findings {
		if f.VerificationStatus == models.StatusFalsePositive {
			continue
		}
		shown++
		writeFinding(&b, shown, f)
	}
	if shown == 0 {
		b.WriteString("No confirmed findings.\n")
	}

	return b.String()
}

func writeSummary(b *strings.Builder, stats models.Statistics) {
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(b, "Confirmed: %d. False positives filtered: %d.\n\n", stats.TotalConfirmed, stats.TotalFalsePositive)

	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityAdvisory} {
		if n, ok := stats.CountsBySeverity[sev]; ok {
			fmt.Fprintf(b, "| %s | %d |\n", sev, n)
		}
	}
	b.WriteString("\n")
}

func writeUsage(b *strings.Builder, usage map[string]models.TokenUsage) {
	if len(usage) == 0 {
		return
	}
	b.WriteString("## Token Usage\n\n")
	b.WriteString("| Role | Calls | Prompt | Completion | Total |\n|---|---|---|---|---|\n")
	for _, role := range []string{"analyst", "auditor", "verifier", "whitehat"} {
		u, ok := usage[role]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "| %s | %d | %d | %d | %d |\n", role, u.CallCount, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}
	b.WriteString("\n")
}

func writeFinding(b *strings.Builder, n int, f models.VerifiedFinding) {
	orig := f.OriginalFinding
	fmt.Fprintf(b, "### %d. %s (%s)\n\n", n, orig.Title, f.FinalSeverity)
	fmt.Fprintf(b, "- **Status:** %s\n", f.VerificationStatus)
	fmt.Fprintf(b, "- **Confidence:** %d\n", f.FinalConfidence)
	fmt.Fprintf(b, "- **Location:** `%s::%s`\n", orig.Location.Module, orig.Location.Function)
	fmt.Fprintf(b, "- **Category:** %s\n", orig.Category)

	if orig.Description != "" {
		fmt.Fprintf(b, "\n%s\n", orig.Description)
	}
	if orig.Evidence != "" {
		fmt.Fprintf(b, "\n```move\n%s\n```\n", orig.Evidence)
	}
	if f.Recommendations != "" {
		fmt.Fprintf(b, "\n**Recommendation:** %s\n", f.Recommendations)
	} else if orig.Recommendation != "" {
		fmt.Fprintf(b, "\n**Recommendation:** %s\n", orig.Recommendation)
	}
	if f.VerifierResult.MechanismName != "" {
		fmt.Fprintf(b, "\n**Recognized safe mechanism:** %s\n", f.VerifierResult.MechanismName)
	}

	if f.Exploit != nil {
		writeExploit(b, f.Exploit)
	}
	b.WriteString("\n")
}

func writeExploit(b *strings.Builder, e *models.ExploitVerificationReport) {
	fmt.Fprintf(b, "\n**Exploit-chain analysis:** %s (exploitability %.1f, confidence %d)\n",
		e.Status, e.ExploitabilityScore, e.ConfidenceScore)
	if e.EntryPoint != "" {
		fmt.Fprintf(b, "- Entry point: `%s`\n", e.EntryPoint)
	}
	for _, step := range e.AttackPath {
		fmt.Fprintf(b, "  %d. %s (`%s`)\n", step.Step, step.Description, step.FunctionRef)
	}
	if e.Impact != "" {
		fmt.Fprintf(b, "- Impact: %s\n", e.Impact)
	}
}
