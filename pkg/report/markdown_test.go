package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sui-sentry/auditengine/pkg/models"
)

func sampleReport() *models.Report {
	findings := []models.VerifiedFinding{
		{
			OriginalFinding: models.Finding{
				ID: "f1", Title: "Unchecked receipt amount", Category: "validation",
				Location: models.Location{Module: "sui_sentry::vault", Function: "withdraw"},
				Evidence: "settle(vault, receipt);", Recommendation: "assert amount <= balance",
			},
			VerificationStatus: models.StatusConfirmed,
			FinalSeverity:       models.SeverityHigh,
			FinalConfidence:      80,
			Exploit: &models.ExploitVerificationReport{
				Status: models.ExploitVerified, ExploitabilityScore: 8, ConfidenceScore: 90,
				EntryPoint: "sui_sentry::vault::withdraw",
				AttackPath: []models.AttackStep{{Step: 1, Description: "call withdraw with oversized receipt", FunctionRef: "withdraw"}},
			},
		},
		{
			OriginalFinding: models.Finding{ID: "f2", Title: "hot potato misread", Category: "flashloan"},
			VerificationStatus: models.StatusFalsePositive,
			FinalSeverity:       models.SeverityNone,
		},
	}
	return &models.Report{
		ProjectName: "vault",
		Status:      models.AuditStatusCompleted,
		Findings:    findings,
		Statistics:  models.NewStatistics(findings),
		TokenUsage: map[string]models.TokenUsage{
			"auditor": {PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140, CallCount: 2},
		},
	}
}

func TestRenderMarkdown_IncludesConfirmedFindingAndSkipsFalsePositive(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	assert.Contains(t, md, "Unchecked receipt amount")
	assert.Contains(t, md, "sui_sentry::vault::withdraw")
	assert.Contains(t, md, "Exploit-chain analysis")
	assert.NotContains(t, md, "hot potato misread")
}

func TestRenderMarkdown_NoConfirmedFindingsSaysSo(t *testing.T) {
	r := &models.Report{ProjectName: "empty", Status: models.AuditStatusCompleted}
	md := RenderMarkdown(r)
	assert.Contains(t, md, "No confirmed findings.")
}

func TestWriteMarkdown_WritesSanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()
	r.ProjectName = "my project/v2"

	path, err := WriteMarkdown(r, dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "my_project_v2"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "vault")
}
