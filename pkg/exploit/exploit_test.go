package exploit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

type fakeBackend struct {
	response llm.Response
	err      error
}

func (b *fakeBackend) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ bool) (llm.Response, error) {
	if b.err != nil {
		return llm.Response{}, b.err
	}
	return b.response, nil
}

func newTestToolkit() *toolkit.Toolkit {
	idx := &models.ProjectIndex{Modules: map[string]*models.ModuleInfo{}, Chunks: map[string]*models.CodeChunk{}}
	return toolkit.New(idx, nil)
}

func confirmedFinding(severity models.Severity) models.VerifiedFinding {
	return models.VerifiedFinding{
		OriginalFinding: models.Finding{
			Title: "Reentrant withdraw", Category: "reentrancy",
			Location: models.Location{Module: "defi::vault", Function: "withdraw"},
			Evidence: "transfer::public_transfer(coin, sender); balances.remove(sender);",
		},
		VerificationStatus: models.StatusConfirmed,
		FinalSeverity:      severity,
	}
}

func TestAnalyze_SkipsWhenDisabled(t *testing.T) {
	tk := newTestToolkit()
	provider := llm.NewProvider(&fakeBackend{}, llm.DefaultRetryPolicy, "test-model", 0)
	parent := agent.NewWhiteHat(provider, tk)
	a := New(provider, tk, parent)

	findings := []models.VerifiedFinding{confirmedFinding(models.SeverityCritical)}
	out, stats, err := a.Analyze(context.Background(), findings, false, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Exploit)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Analyzed)
}

func TestAnalyze_SkipsLowSeverityAndFalsePositives(t *testing.T) {
	tk := newTestToolkit()
	provider := llm.NewProvider(&fakeBackend{}, llm.DefaultRetryPolicy, "test-model", 0)
	parent := agent.NewWhiteHat(provider, tk)
	a := New(provider, tk, parent)

	low := confirmedFinding(models.SeverityLow)
	fp := confirmedFinding(models.SeverityCritical)
	fp.VerificationStatus = models.StatusFalsePositive

	out, stats, err := a.Analyze(context.Background(), []models.VerifiedFinding{low, fp}, true, Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Exploit)
	assert.Nil(t, out[1].Exploit)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Analyzed)
}

func TestAnalyze_VerifiedExploitForCriticalFinding(t *testing.T) {
	tk := newTestToolkit()
	backend := &fakeBackend{response: llm.Response{Content: `{
		"is_exploitable": true, "confidence": 90, "exploitability_score": 8,
		"entry_point": "withdraw", "impact": "drains vault",
		"vulnerability_summary": "classic reentrancy via external call before state update",
		"attack_path": [{"step":1,"description":"call withdraw","function_ref":"defi::vault::withdraw"}],
		"preconditions": ["attacker has a deposit"]
	}`}}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	parent := agent.NewWhiteHat(provider, tk)
	a := New(provider, tk, parent)

	findings := []models.VerifiedFinding{confirmedFinding(models.SeverityCritical)}
	out, stats, err := a.Analyze(context.Background(), findings, true, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Exploit)

	assert.Equal(t, models.ExploitVerified, out[0].Exploit.Status)
	assert.Equal(t, 8.0, out[0].Exploit.ExploitabilityScore)
	assert.Equal(t, 90, out[0].Exploit.ConfidenceScore)
	require.Len(t, out[0].Exploit.AttackPath, 1)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 1, stats.Counts[models.ExploitVerified])

	// sub-agent usage must merge into the parent agent's counters.
	assert.Equal(t, parent.Usage().CallCount, 1)
}

func TestAnalyze_SubAgentFailureFallsBackToNeedsReview(t *testing.T) {
	tk := newTestToolkit()
	backend := &fakeBackend{err: errors.New("provider unreachable")}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	parent := agent.NewWhiteHat(provider, tk)
	a := New(provider, tk, parent)

	findings := []models.VerifiedFinding{confirmedFinding(models.SeverityHigh)}
	out, _, err := a.Analyze(context.Background(), findings, true, Options{})
	require.NoError(t, err, "a failed sub-agent call must never propagate as an Analyze error")
	require.NotNil(t, out[0].Exploit)
	assert.Equal(t, models.ExploitNeedsReview, out[0].Exploit.Status)
	assert.Contains(t, out[0].Exploit.VulnerabilitySummary, "error:")
}

func TestWhiteHatFieldExtractor_RecoversFromFreeText(t *testing.T) {
	text := `The analysis concludes is_exploitable: true, with confidence=75 and exploitability_score: 6.5. vulnerability_summary: "attacker can drain funds"`
	fields := whiteHatFieldExtractor(text)
	require.NotNil(t, fields)
	assert.Equal(t, true, fields["is_exploitable"])
	assert.Equal(t, 75, fields["confidence"])
	assert.Equal(t, 6.5, fields["exploitability_score"])
	assert.Equal(t, "attacker can drain funds", fields["vulnerability_summary"])
}

func TestDeriveExploitStatus_MatchesDecisionTable(t *testing.T) {
	assert.Equal(t, models.ExploitVerified, models.DeriveExploitStatus(true, 80, 7))
	assert.Equal(t, models.ExploitLikely, models.DeriveExploitStatus(true, 60, 5))
	assert.Equal(t, models.ExploitNeedsReview, models.DeriveExploitStatus(true, 10, 4))
	assert.Equal(t, models.ExploitFalsePositive, models.DeriveExploitStatus(false, 80, 2))
	assert.Equal(t, models.ExploitTheoretical, models.DeriveExploitStatus(false, 80, 3))
	assert.Equal(t, models.ExploitNeedsReview, models.DeriveExploitStatus(false, 10, 1))
}
