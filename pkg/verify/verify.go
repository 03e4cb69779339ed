// Package verify implements Phase 3, the Role-Swap Verifier (spec §4.5):
// soft filtering through the Exclusion Rules Engine, module grouping,
// shared-context assembly, one grouped LLM call per batch via the Verifier
// agent, and conservative normalization. New domain code; concurrency
// across groups is bounded with golang.org/x/sync's semaphore.Weighted and
// errgroup, the same bounded-fan-out shape used for every phase in this
// repo.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/jsonrepair"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/rules"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// Mode selects the grouping strategy (spec §9 Open Question: grouped is the
// default; per-finding is the documented fallback).
type Mode string

const (
	ModeGrouped    Mode = "grouped"
	ModePerFinding Mode = "per_finding"
)

// Options configures one Verify call.
type Options struct {
	Mode                 Mode
	GroupSize            int // default 5
	MaxConcurrentGroups  int64 // default 3
	CallerTag            string
}

// applyDefaults fills the zero-value fields with spec.md's defaults.
func (o Options) applyDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeGrouped
	}
	if o.GroupSize <= 0 {
		o.GroupSize = 5
	}
	if o.MaxConcurrentGroups <= 0 {
		o.MaxConcurrentGroups = 3
	}
	if o.CallerTag == "" {
		o.CallerTag = "verifier"
	}
	return o
}

// Stats reports Phase 3 outcome statistics (spec §4.5: "counts per
// verification_status, expected token savings vs per-finding mode").
type Stats struct {
	Counts                map[models.VerificationStatus]int
	Retrieval             RetrievalCounts
	GroupCalls            int
	PerFindingCallsWouldBe int
	EstimatedTokenSavingsPct float64
}

// Verifier drives Phase 3 end to end.
type Verifier struct {
	verifierAgent *agent.Agent
	rulesEngine   *rules.Engine
	tools         *toolkit.Toolkit
}

// New builds a Verifier over one shared Verifier agent instance. Group
// calls issue with Stateless:true (spec §4.4's stateless fast path), so
// the same agent instance serves every concurrent group without lock
// contention — only its token counters are shared mutable state, and those
// are already lock-guarded by AtomicUsage.
func New(verifierAgent *agent.Agent, rulesEngine *rules.Engine, tools *toolkit.Toolkit) *Verifier {
	return &Verifier{verifierAgent: verifierAgent, rulesEngine: rulesEngine, tools: tools}
}

// Verify runs the full Phase 3 pipeline over findings, preserving input
// order in the returned slice regardless of which group finishes first.
func (v *Verifier) Verify(ctx context.Context, findings []models.Finding, opts Options) ([]models.VerifiedFinding, Stats, error) {
	opts = opts.applyDefaults()

	// Step 1: soft filtering. Never drops a finding.
	filtered := make([]models.Finding, len(findings))
	for i, f := range findings {
		out := v.rulesEngine.Apply(f)
		out.InputIndex = i
		filtered[i] = out
	}

	groupSize := opts.GroupSize
	if opts.Mode == ModePerFinding {
		groupSize = 1
	}

	// Step 2: module grouping.
	groups := groupFindings(filtered, groupSize)

	results := make([]models.VerifiedFinding, len(filtered))
	var stats Stats
	stats.Counts = map[models.VerificationStatus]int{}
	stats.GroupCalls = len(groups)
	stats.PerFindingCallsWouldBe = len(filtered)
	if stats.PerFindingCallsWouldBe > 0 {
		stats.EstimatedTokenSavingsPct = 100 * (1 - float64(stats.GroupCalls)/float64(stats.PerFindingCallsWouldBe))
	}

	sem := semaphore.NewWeighted(opts.MaxConcurrentGroups)
	g, gctx := errgroup.WithContext(ctx)

	var statsMu sync.Mutex

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			groupResults, counts := v.verifyGroup(gctx, group, opts)

			statsMu.Lock()
			stats.Retrieval.add(counts)
			statsMu.Unlock()

			for _, vf := range groupResults {
				results[vf.OriginalFinding.InputIndex] = vf
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, fmt.Errorf("verify: group fan-out: %w", err)
	}

	for _, vf := range results {
		stats.Counts[vf.VerificationStatus]++
	}

	return results, stats, nil
}

// verifyGroup builds the shared context, issues one grouped LLM call, and
// normalizes every result in the group (spec §4.5 Steps 3-5).
func (v *Verifier) verifyGroup(ctx context.Context, group []models.Finding, opts Options) ([]models.VerifiedFinding, RetrievalCounts) {
	gctx := buildGroupContext(v.tools, group)

	prompt := buildGroupPrompt(group, gctx)

	raw, err := v.verifierAgent.CallLLMWithTools(ctx, prompt, agent.LoopOptions{
		MaxRounds: 3, // context is pre-built; spec §4.5 Step 4
		JSONMode:  true,
		Stateless: true,
		CallerTag: opts.CallerTag,
	})

	if err != nil {
		return groupFailureFallback(group, err), gctx.Retrieval
	}

	parsed := v.verifierAgent.ParseJSON(raw, verifierFieldExtractor)
	entries := extractResultEntries(parsed)
	if entries == nil {
		return groupFailureFallback(group, fmt.Errorf("unparseable verifier response (strategy=%s)", parsed.Strategy)), gctx.Retrieval
	}

	byIndex := map[int]map[string]any{}
	for _, e := range entries {
		if idx, ok := asInt(e["vuln_index"]); ok {
			byIndex[idx] = e
		}
	}

	out := make([]models.VerifiedFinding, 0, len(group))
	for i, f := range group {
		entry, ok := byIndex[i]
		if !ok {
			out = append(out, fallbackVerifiedFinding(f, "error: no verifier result for this vuln_index"))
			continue
		}
		out = append(out, verifiedFindingFromEntry(f, entry))
	}
	return out, gctx.Retrieval
}

func buildGroupPrompt(group []models.Finding, gctx groupContext) string {
	var b strings.Builder
	b.WriteString(gctx.CodeContext)
	b.WriteString("\n")
	b.WriteString(gctx.KnowledgeBundle)
	b.WriteString("\n-- findings to verify --\n")
	for i, f := range group {
		fmt.Fprintf(&b, "vuln_index=%d title=%q category=%q severity=%s module=%s function=%s\nevidence: %s\ndescription: %s\n\n",
			i, f.Title, f.Category, f.Severity, f.Location.Module, f.Location.Function, f.Evidence, f.Description)
	}
	b.WriteString("Respond with a JSON array with exactly one object per vuln_index above. Each object must include: vuln_index, conclusion (confirmed|false_positive|needs_review|partially_valid), final_severity, confidence (0-100), reasoning, mechanism_name, recommendations.")
	return b.String()
}

// extractResultEntries returns the per-finding result objects from a parsed
// response, whether it arrived as a top-level array or was recovered by
// verifierFieldExtractor's "results" wrapper. Returns nil when neither
// shape is present — a total parse failure.
func extractResultEntries(r jsonrepair.Result) []map[string]any {
	if r.IsArray {
		return toMapSlice(r.Array)
	}
	if r.Value != nil {
		if arr, ok := r.Value["results"].([]any); ok {
			return toMapSlice(arr)
		}
	}
	return nil
}

func toMapSlice(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func verifiedFindingFromEntry(f models.Finding, e map[string]any) models.VerifiedFinding {
	vr := models.VerifierResult{
		Conclusion:      asString(e["conclusion"]),
		FinalSeverity:   asString(e["final_severity"]),
		Confidence:      firstInt(e["confidence"]),
		Reasoning:       asString(e["reasoning"]),
		MechanismName:   asString(e["mechanism_name"]),
		Recommendations: asString(e["recommendations"]),
	}
	vf := models.VerifiedFinding{
		OriginalFinding:    f,
		VerificationStatus: models.VerificationStatus(vr.Conclusion),
		FinalSeverity:      models.Severity(vr.FinalSeverity),
		FinalConfidence:    vr.Confidence,
		VerifierResult:     vr,
		Recommendations:    vr.Recommendations,
		SwapRounds: []models.SwapRound{{
			Round: 1, Role: "verifier", Verdict: vr.Conclusion, Reasoning: vr.Reasoning, Confidence: vr.Confidence,
		}},
	}
	if vf.FinalSeverity == "" {
		vf.FinalSeverity = f.Severity
	}
	return *vf.Normalize()
}

func fallbackVerifiedFinding(f models.Finding, reason string) models.VerifiedFinding {
	vf := models.VerifiedFinding{
		OriginalFinding:    f,
		VerificationStatus: models.StatusNeedsReview,
		FinalSeverity:      f.Severity,
		FinalConfidence:    50,
		VerifierResult: models.VerifierResult{
			Conclusion: string(models.StatusNeedsReview),
			Reasoning:  reason,
			Confidence: 50,
		},
	}
	return *vf.Normalize()
}

func groupFailureFallback(group []models.Finding, err error) []models.VerifiedFinding {
	out := make([]models.VerifiedFinding, 0, len(group))
	for _, f := range group {
		out = append(out, fallbackVerifiedFinding(f, fmt.Sprintf("error: %v", err)))
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func firstInt(v any) int {
	i, _ := asInt(v)
	return i
}

// verifierFieldExtractor is the Verifier role's regex fallback (spec §4.9
// step 10) for when every structural JSON-repair strategy fails: it
// recovers repeated vuln_index/conclusion/confidence/reasoning tuples from
// free text and wraps them as {"results": [...]}, so extractResultEntries
// can still salvage a partial group result instead of falling all the way
// through to groupFailureFallback.
var verifierEntryPattern = regexp.MustCompile(`(?is)"?vuln_index"?\s*[:=]\s*(\d+).*?"?conclusion"?\s*[:=]\s*"?(\w+)"?.*?"?confidence"?\s*[:=]\s*(\d+)`)

func verifierFieldExtractor(text string) map[string]any {
	matches := verifierEntryPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	results := make([]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"vuln_index": jsonrepair.ParseInt(m[1]),
			"conclusion": m[2],
			"confidence": jsonrepair.ParseInt(m[3]),
			"reasoning":  "recovered via regex field extraction after JSON parse failure",
		})
	}
	return map[string]any{"results": results}
}
