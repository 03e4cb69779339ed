package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/config"
	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/progress"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

const sampleModule = `
module sui_sentry::vault {
    struct Receipt { amount: u64 }
    struct Vault has key, store { balance: u64 }

    public entry fun withdraw(vault: &mut Vault, receipt: Receipt) {
        settle(vault, receipt);
    }

    fun settle(vault: &mut Vault, receipt: Receipt) {
        let _ = receipt;
    }
}
`

// routingBackend picks its scripted response by matching a substring
// against the last message's content, so tests don't depend on exact call
// ordering or count across batches.
type routingBackend struct {
	routes []struct {
		match    string
		response llm.Response
	}
	fallback llm.Response
}

func (b *routingBackend) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition, _ bool) (llm.Response, error) {
	last := messages[len(messages)-1].Content
	for _, r := range b.routes {
		if strings.Contains(last, r.match) {
			return r.response, nil
		}
	}
	return b.fallback, nil
}

func newTempSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sources"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources", "vault.move"), []byte(sampleModule), 0o644))
	return dir
}

func TestRunPhase0_BuildsIndex(t *testing.T) {
	dir := newTempSourceTree(t)
	e := &Engine{reporter: noopReporter()}
	defer e.Close()

	idx, err := e.runPhase0(dir)
	require.NoError(t, err)
	assert.Contains(t, idx.Modules, "sui_sentry::vault")
	assert.NotEmpty(t, idx.Chunks)
}

func TestRunPhase1_PopulatesContractAnalysis(t *testing.T) {
	dir := newTempSourceTree(t)
	e := &Engine{reporter: noopReporter()}
	defer e.Close()
	idx, err := e.runPhase0(dir)
	require.NoError(t, err)
	e.tools = toolkit.New(idx, nil)

	backend := &routingBackend{
		routes: []struct {
			match    string
			response llm.Response
		}{
			{"state_variables", llm.Response{Content: `{"state_variables":["balance"],"conditional_thresholds":[],"dataflow_notes":[],"vulnerability_chains":[]}`}},
			{"Describe the purpose", llm.Response{Content: `{"sui_sentry::vault::withdraw":"withdraws funds from the vault","sui_sentry::vault::settle":"applies the withdrawal"}`}},
		},
	}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	analyst := agent.NewAnalyst(provider, e.tools)

	err = e.runPhase1(context.Background(), idx, analyst)
	require.NoError(t, err)

	ca := e.tools.ContractAnalysis()
	require.NotNil(t, ca)
	assert.Contains(t, ca.Hints.StateVariables, "balance")
	assert.Equal(t, "withdraws funds from the vault", ca.Purposes["sui_sentry::vault::withdraw"])
}

func TestRunPhase2_CollectsFindings(t *testing.T) {
	dir := newTempSourceTree(t)
	e := &Engine{reporter: noopReporter()}
	defer e.Close()
	idx, err := e.runPhase0(dir)
	require.NoError(t, err)
	e.tools = toolkit.New(idx, nil)

	backend := &routingBackend{
		routes: []struct {
			match    string
			response llm.Response
		}{
			{"Respond with a JSON array of findings", llm.Response{Content: `[
				{"function":"sui_sentry::vault::withdraw","title":"Unchecked receipt amount","severity":"high",
				 "category":"validation","description":"receipt amount never checked against vault balance",
				 "evidence":"settle(vault, receipt);","recommendation":"assert amount <= balance","confidence":70}
			]`}},
		},
	}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	auditor := agent.NewAuditor(provider, e.tools)

	cfg := testConfig()
	findings, err := e.runPhase2(context.Background(), idx, auditor, cfg)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "Unchecked receipt amount", findings[0].Title)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "sui_sentry::vault", findings[0].Location.Module)
	assert.NotEmpty(t, findings[0].ID)
}

func TestRunPhase3_VerifiesFindings(t *testing.T) {
	dir := newTempSourceTree(t)
	e := &Engine{reporter: noopReporter(), cfg: testConfig()}
	defer e.Close()
	idx, err := e.runPhase0(dir)
	require.NoError(t, err)
	e.tools = toolkit.New(idx, nil)

	backend := &routingBackend{
		fallback: llm.Response{Content: `[{"vuln_index":0,"conclusion":"confirmed","final_severity":"high","confidence":80,"reasoning":"ok"}]`},
	}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	verifierAgent := agent.NewVerifier(provider, e.tools)

	findings := []models.Finding{
		{ID: "f1", Title: "t", Severity: models.SeverityHigh, Category: "c", Location: models.Location{Module: "sui_sentry::vault", Function: "withdraw"}},
	}
	results, err := e.runPhase3(context.Background(), findings, verifierAgent)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusConfirmed, results[0].VerificationStatus)
}

func TestRunPhase4_SkipsWhenDisabled(t *testing.T) {
	e := &Engine{reporter: noopReporter(), cfg: testConfig()}
	defer e.Close()
	e.tools = toolkit.New(&models.ProjectIndex{Modules: map[string]*models.ModuleInfo{}, Chunks: map[string]*models.CodeChunk{}}, nil)

	provider := llm.NewProvider(&routingBackend{}, llm.DefaultRetryPolicy, "test-model", 0)
	whitehat := agent.NewWhiteHat(provider, e.tools)

	findings := []models.VerifiedFinding{{VerificationStatus: models.StatusConfirmed, FinalSeverity: models.SeverityCritical}}
	results, err := e.runPhase4(context.Background(), findings, provider, whitehat)
	require.NoError(t, err)
	assert.Nil(t, results[0].Exploit)
}

func TestRunPhase5_SortsBySeverityThenConfidenceThenID(t *testing.T) {
	e := &Engine{reporter: noopReporter()}
	defer e.Close()

	findings := []models.VerifiedFinding{
		{OriginalFinding: models.Finding{ID: "b"}, FinalSeverity: models.SeverityMedium, FinalConfidence: 90},
		{OriginalFinding: models.Finding{ID: "a"}, FinalSeverity: models.SeverityCritical, FinalConfidence: 50},
		{OriginalFinding: models.Finding{ID: "c"}, FinalSeverity: models.SeverityCritical, FinalConfidence: 80},
	}
	report := e.runPhase5("proj", findings, nil)
	require.Len(t, report.Findings, 3)
	assert.Equal(t, "c", report.Findings[0].OriginalFinding.ID) // critical, confidence 80
	assert.Equal(t, "a", report.Findings[1].OriginalFinding.ID) // critical, confidence 50
	assert.Equal(t, "b", report.Findings[2].OriginalFinding.ID) // medium
	assert.Equal(t, models.AuditStatusCompleted, report.Status)
}

// blockingBackend blocks until either ctx is cancelled or release is closed,
// simulating an in-flight LLM call caught mid-phase by Engine.Cancel.
type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Chat(ctx context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ bool) (llm.Response, error) {
	select {
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	case <-b.release:
		return llm.Response{}, nil
	}
}

func TestRunPhase3_CancelMidGroupFanOutReturnsCancellationError(t *testing.T) {
	dir := newTempSourceTree(t)
	e := &Engine{reporter: noopReporter(), cfg: testConfig()}
	defer e.Close()
	idx, err := e.runPhase0(dir)
	require.NoError(t, err)
	e.tools = toolkit.New(idx, nil)

	backend := &blockingBackend{release: make(chan struct{})}
	provider := llm.NewProvider(backend, llm.DefaultRetryPolicy, "test-model", 0)
	verifierAgent := agent.NewVerifier(provider, e.tools)

	findings := []models.Finding{
		{ID: "f1", Title: "t", Severity: models.SeverityHigh, Category: "c", Location: models.Location{Module: "sui_sentry::vault", Function: "withdraw"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { cancel() }()

	_, err = e.runPhase3(ctx, findings, verifierAgent)
	require.Error(t, err)
	assert.True(t, isCancellationErr(err), "expected a context.Canceled-wrapping error, got %v", err)
}

func TestPhaseOutcome_CancellationErrorMapsToCancelledReportNotFailed(t *testing.T) {
	rep, retErr, done := phaseOutcome("proj", context.Canceled, false)
	require.True(t, done)
	require.NoError(t, retErr)
	assert.Equal(t, models.AuditStatusCancelled, rep.Status)
}

func TestPhaseOutcome_WrappedCancellationErrorStillMapsToCancelled(t *testing.T) {
	wrapped := fmt.Errorf("phase 3: %w", context.Canceled)
	rep, retErr, done := phaseOutcome("proj", wrapped, false)
	require.True(t, done)
	require.NoError(t, retErr)
	assert.Equal(t, models.AuditStatusCancelled, rep.Status)
}

func TestPhaseOutcome_CancelRequestedWithoutCancellationErrorStillMapsToCancelled(t *testing.T) {
	rep, retErr, done := phaseOutcome("proj", errors.New("boom"), true)
	require.True(t, done)
	require.NoError(t, retErr)
	assert.Equal(t, models.AuditStatusCancelled, rep.Status)
}

func TestPhaseOutcome_GenuineErrorMapsToFailedReport(t *testing.T) {
	rep, retErr, done := phaseOutcome("proj", errors.New("boom"), false)
	require.True(t, done)
	require.Error(t, retErr)
	assert.Equal(t, models.AuditStatusFailed, rep.Status)
}

func TestPhaseOutcome_NilErrorMeansKeepGoing(t *testing.T) {
	rep, retErr, done := phaseOutcome("proj", nil, false)
	assert.False(t, done)
	assert.NoError(t, retErr)
	assert.Nil(t, rep)
}

func testConfig() *config.AuditConfig {
	return &config.AuditConfig{
		EnableBroadAnalysis: true,
		UseGroupVerify:      true,
		GroupSize:           5,
	}
}

func noopReporter() *progress.Reporter {
	return progress.NewReporter(nil)
}
