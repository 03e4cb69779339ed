// Package engine implements the Phase Scheduler (spec §4.1): it drives
// Phases 0-5 end to end over one ProjectIndex, enforces cooperative
// cancellation at every phase boundary, and aggregates the final Report.
// Phases 1 and 2 fan out here with a semaphore plus errgroup; the fan-out
// of Phases 3 and 4 is delegated to pkg/verify and pkg/exploit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/config"
	"github.com/sui-sentry/auditengine/pkg/exploit"
	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/progress"
	"github.com/sui-sentry/auditengine/pkg/report"
	"github.com/sui-sentry/auditengine/pkg/rules"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
	"github.com/sui-sentry/auditengine/pkg/verify"
)

// Engine drives one AuditConfig's worth of audits. A single Engine may run
// Audit sequentially any number of times; it is not safe to call Audit
// concurrently from two goroutines on the same instance (Cancel targets
// "the in-flight audit", of which there is at most one by contract).
type Engine struct {
	cfg          *config.AuditConfig
	vectorSearch toolkit.VectorSearcher
	reporter     *progress.Reporter

	mu     sync.Mutex
	cancel context.CancelFunc
	tools  *toolkit.Toolkit
}

// New builds an Engine. vectorSearch may be nil — the RAG-backed tools then
// answer {success:false} (spec §4.3: "optional; if absent, returns error").
// cb may be nil to discard progress events.
func New(cfg *config.AuditConfig, vectorSearch toolkit.VectorSearcher, cb progress.Callback) *Engine {
	return &Engine{
		cfg:          cfg,
		vectorSearch: vectorSearch,
		reporter:     progress.NewReporter(cb),
	}
}

// Close releases the progress reporter's drain goroutine. Call once the
// Engine is no longer needed.
func (e *Engine) Close() {
	e.reporter.Close()
}

func (e *Engine) report(phase int, percent float64, message string) {
	e.reporter.Report(phase, percent, message)
}

// Cancel requests cooperative cancellation of the in-flight Audit call, if
// any (spec §4.1: "in-flight LLM calls are allowed to finish but results
// are discarded").
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Audit runs the full six-phase pipeline against source (a directory of
// Move source files) and returns the assembled Report. A cancellation
// never surfaces as an error — it surfaces as Report.Status ==
// AuditStatusCancelled, per spec §4.1's phase contract.
func (e *Engine) Audit(ctx context.Context, source, projectName string) (*models.Report, error) {
	auditCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	checkCancel := func() bool {
		select {
		case <-auditCtx.Done():
			return true
		default:
			return false
		}
	}

	// asReportOrNil turns a phase error into the Audit return pair: a
	// mid-phase cancellation (the phase's own errgroup/semaphore fan-out
	// observing auditCtx.Done()) always reports as AuditStatusCancelled, not
	// AuditStatusFailed, matching the boundary-only checkCancel() calls
	// below (spec §4.1: "cancelled during any phase -> audit status becomes
	// cancelled"). Any other error is a genuine failure.
	asReportOrNil := func(err error) (*models.Report, error, bool) {
		return phaseOutcome(projectName, err, checkCancel())
	}

	idx, err := e.runPhase0(source)
	if rep, rerr, done := asReportOrNil(err); done {
		return rep, rerr
	}
	if checkCancel() {
		return cancelledReport(projectName), nil
	}

	e.tools = toolkit.New(idx, e.vectorSearch)

	provider, err := buildProvider(e.cfg, e.cfg.DefaultLLM)
	if err != nil {
		return failedReport(projectName, err), err
	}

	analyst := agent.NewAnalyst(provider, e.tools)
	auditor := agent.NewAuditor(provider, e.tools)
	verifierAgent := agent.NewVerifier(provider, e.tools)
	whitehat := agent.NewWhiteHat(provider, e.tools)

	err = e.runPhase1(auditCtx, idx, analyst)
	if rep, rerr, done := asReportOrNil(err); done {
		return rep, rerr
	}
	if checkCancel() {
		return cancelledReport(projectName), nil
	}

	findings, err := e.runPhase2(auditCtx, idx, auditor, e.cfg)
	if rep, rerr, done := asReportOrNil(err); done {
		return rep, rerr
	}
	if checkCancel() {
		return cancelledReport(projectName), nil
	}

	verifiedFindings, err := e.runPhase3(auditCtx, findings, verifierAgent)
	if rep, rerr, done := asReportOrNil(err); done {
		return rep, rerr
	}
	if checkCancel() {
		return cancelledReport(projectName), nil
	}

	verifiedFindings, err = e.runPhase4(auditCtx, verifiedFindings, provider, whitehat)
	if rep, rerr, done := asReportOrNil(err); done {
		return rep, rerr
	}
	if checkCancel() {
		return cancelledReport(projectName), nil
	}

	usage := map[string]models.TokenUsage{
		string(agent.RoleAnalyst):  analyst.Usage(),
		string(agent.RoleAuditor):  auditor.Usage(),
		string(agent.RoleVerifier): verifierAgent.Usage(),
		string(agent.RoleWhiteHat): whitehat.Usage(),
	}

	return e.runPhase5(projectName, verifiedFindings, usage), nil
}

// runPhase3 wraps pkg/verify for the engine's sequencing (spec §4.5).
func (e *Engine) runPhase3(ctx context.Context, findings []models.Finding, verifierAgent *agent.Agent) ([]models.VerifiedFinding, error) {
	e.report(3, 0, fmt.Sprintf("verifying %d findings", len(findings)))

	v := verify.New(verifierAgent, rules.NewEngine(), e.tools)
	opts := verify.Options{
		GroupSize:           e.cfg.GroupSize,
		MaxConcurrentGroups: int64(e.cfg.Concurrency.MaxConcurrentVerify),
	}
	if !e.cfg.UseGroupVerify {
		opts.Mode = verify.ModePerFinding
	}

	results, stats, err := v.Verify(ctx, findings, opts)
	if err != nil {
		return nil, fmt.Errorf("phase 3: %w", err)
	}

	e.report(3, 100, fmt.Sprintf("verification complete: %d group calls, %.0f%% estimated token savings",
		stats.GroupCalls, stats.EstimatedTokenSavingsPct))
	return results, nil
}

// runPhase4 wraps pkg/exploit for the engine's sequencing (spec §4.6).
func (e *Engine) runPhase4(ctx context.Context, findings []models.VerifiedFinding, provider *llm.Provider, whitehat *agent.Agent) ([]models.VerifiedFinding, error) {
	e.report(4, 0, "exploit-chain analysis")

	a := exploit.New(provider, e.tools, whitehat)
	opts := exploit.Options{MaxConcurrent: int64(e.cfg.Concurrency.MaxConcurrentExploit)}

	results, stats, err := a.Analyze(ctx, findings, e.cfg.EnableExploitVerification, opts)
	if err != nil {
		return nil, fmt.Errorf("phase 4: %w", err)
	}

	e.report(4, 100, fmt.Sprintf("exploit-chain analysis complete: %d analyzed, %d skipped", stats.Analyzed, stats.Skipped))
	return results, nil
}

// runPhase5 assembles the deterministic final report (spec §4.1 Phase 5):
// findings sorted by severity, then confidence descending, then stable id.
func (e *Engine) runPhase5(projectName string, findings []models.VerifiedFinding, usage map[string]models.TokenUsage) *models.Report {
	e.report(5, 0, "assembling report")

	sorted := make([]models.VerifiedFinding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FinalSeverity.Rank() != sorted[j].FinalSeverity.Rank() {
			return sorted[i].FinalSeverity.Rank() < sorted[j].FinalSeverity.Rank()
		}
		if sorted[i].FinalConfidence != sorted[j].FinalConfidence {
			return sorted[i].FinalConfidence > sorted[j].FinalConfidence
		}
		return sorted[i].OriginalFinding.ID < sorted[j].OriginalFinding.ID
	})

	rep := &models.Report{
		ProjectName: projectName,
		Status:      models.AuditStatusCompleted,
		Findings:    sorted,
		Statistics:  models.NewStatistics(sorted),
		TokenUsage:  usage,
	}
	rep.Markdown = report.RenderMarkdown(rep)

	if e.cfg != nil && e.cfg.OutputDir != "" {
		if path, err := report.WriteMarkdown(rep, e.cfg.OutputDir); err != nil {
			slog.Warn("phase 5: failed to write markdown report", "error", err)
		} else {
			e.report(5, 95, fmt.Sprintf("report written to %s", path))
		}
	}

	e.report(5, 100, "audit complete")
	return rep
}

// isCancellationErr reports whether err is (or wraps) context.Canceled — the
// only error a phase's errgroup/semaphore fan-out ever surfaces from
// sem.Acquire once auditCtx is done (every per-item failure inside a batch
// degrades to a partial result instead of propagating, see phase1/phase2's
// "a failed batch" comments), so this is a reliable cancellation test rather
// than a heuristic.
func isCancellationErr(err error) bool {
	return errors.Is(err, context.Canceled)
}

// phaseOutcome turns one phase's (err, cancelRequested) pair into the Audit
// return triple: (report, err, done). cancellation — whether observed via
// isCancellationErr(err) or via the boundary checkCancel() the caller passes
// in — always reports AuditStatusCancelled, never AuditStatusFailed, per
// spec §4.1's phase contract. done is false only when err is nil and no
// cancellation was requested, meaning the caller should keep going.
func phaseOutcome(projectName string, err error, cancelRequested bool) (*models.Report, error, bool) {
	if err == nil {
		return nil, nil, false
	}
	if isCancellationErr(err) || cancelRequested {
		return cancelledReport(projectName), nil, true
	}
	return failedReport(projectName, err), err, true
}

func failedReport(projectName string, err error) *models.Report {
	return &models.Report{ProjectName: projectName, Status: models.AuditStatusFailed, Error: err.Error()}
}

func cancelledReport(projectName string) *models.Report {
	return &models.Report{ProjectName: projectName, Status: models.AuditStatusCancelled, Error: ErrAuditCancelled.Error()}
}
