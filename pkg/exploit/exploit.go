// Package exploit implements Phase 4, the Exploit-Chain Analyzer
// (spec §4.6): for each Phase 3 finding with severity high or critical,
// a dedicated WhiteHat sub-agent — a fresh Agent instance with its own
// message list, isolated from the parent WhiteHat agent's lock — runs a
// shortened tool-call loop and derives an exploitability verdict.
// Concurrency across findings is bounded with golang.org/x/sync, matching
// pkg/verify's fan-out shape.
package exploit

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/jsonrepair"
	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// Options configures one Analyze call.
type Options struct {
	MaxConcurrent int64 // default 3
	CallerTag     string
}

func (o Options) applyDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.CallerTag == "" {
		o.CallerTag = "whitehat"
	}
	return o
}

// Stats reports Phase 4 outcome statistics.
type Stats struct {
	Analyzed int
	Skipped  int
	Counts   map[models.ExploitStatus]int
}

// Analyzer drives Phase 4 end to end.
type Analyzer struct {
	provider *llm.Provider
	tools    *toolkit.Toolkit
	parent   *agent.Agent // aggregates all sub-agent token usage
}

// New builds an Analyzer. parent is the long-lived WhiteHat agent whose
// usage counters every sub-agent call merges into (spec §4.6: "all token
// usage from sub-agents is aggregated into the parent WhiteHat agent's
// counters").
func New(provider *llm.Provider, tools *toolkit.Toolkit, parent *agent.Agent) *Analyzer {
	return &Analyzer{provider: provider, tools: tools, parent: parent}
}

// Analyze runs Phase 4 over Phase 3's verified findings. Only confirmed or
// partially_valid findings with severity high or critical are analyzed;
// everything else is counted in Stats.Skipped and passed through
// unchanged; no per-finding skip reason is recorded. enableExploitVerification gates the whole phase — when false,
// every finding passes through untouched (spec §4.6: "triggered only
// when ... enable_exploit_verification is true").
func (a *Analyzer) Analyze(ctx context.Context, findings []models.VerifiedFinding, enableExploitVerification bool, opts Options) ([]models.VerifiedFinding, Stats, error) {
	opts = opts.applyDefaults()

	stats := Stats{Counts: map[models.ExploitStatus]int{}}
	out := make([]models.VerifiedFinding, len(findings))
	copy(out, findings)

	if !enableExploitVerification {
		stats.Skipped = len(findings)
		return out, stats, nil
	}

	sem := semaphore.NewWeighted(opts.MaxConcurrent)
	g, gctx := errgroup.WithContext(ctx)

	for i, vf := range findings {
		if !eligible(vf) {
			stats.Skipped++
			continue
		}
		i, vf := i, vf
		stats.Analyzed++
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			report := a.analyzeOne(gctx, vf, opts)
			out[i].Exploit = &report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, fmt.Errorf("exploit: fan-out: %w", err)
	}

	for _, vf := range out {
		if vf.Exploit != nil {
			stats.Counts[vf.Exploit.Status]++
		}
	}

	return out, stats, nil
}

// eligible implements spec §4.6's trigger condition.
func eligible(vf models.VerifiedFinding) bool {
	if vf.VerificationStatus != models.StatusConfirmed && vf.VerificationStatus != models.StatusPartiallyValid {
		return false
	}
	return vf.FinalSeverity == models.SeverityHigh || vf.FinalSeverity == models.SeverityCritical
}

// analyzeOne runs the sub-agent flow for one finding (spec §4.6 steps 1-5).
// It never returns an error — a sub-agent failure still produces a
// needs_review report, so a single bad LLM call can't drop a finding from
// the final output.
func (a *Analyzer) analyzeOne(ctx context.Context, vf models.VerifiedFinding, opts Options) models.ExploitVerificationReport {
	subAgent := agent.NewWhiteHat(a.provider, a.tools)
	defer a.parent.MergeUsage(subAgent.Usage())

	retrieval := buildRetrievalContext(a.tools, vf.OriginalFinding)
	prompt := buildSubAgentPrompt(vf, retrieval)

	raw, err := subAgent.CallLLMWithTools(ctx, prompt, agent.LoopOptions{
		MaxRounds:        5,
		MaxToolsPerRound: 2,
		JSONMode:         true,
		Stateless:        true,
		CallerTag:        opts.CallerTag,
	})
	if err != nil {
		return fallbackReport(fmt.Errorf("%w: %v", ErrSubAgentFailed, err))
	}

	parsed := subAgent.ParseJSON(raw, whiteHatFieldExtractor)
	if parsed.Value == nil {
		return fallbackReport(fmt.Errorf("%w: unparseable response (strategy=%s)", ErrSubAgentFailed, parsed.Strategy))
	}

	return reportFromFields(parsed.Value)
}

func buildSubAgentPrompt(vf models.VerifiedFinding, retrieval string) string {
	f := vf.OriginalFinding
	var b strings.Builder
	b.WriteString(retrieval)
	fmt.Fprintf(&b, "\n-- confirmed finding --\ntitle: %s\ncategory: %s\nseverity: %s\ndescription: %s\nverifier reasoning: %s\n\n",
		f.Title, f.Category, vf.FinalSeverity, f.Description, vf.VerifierResult.Reasoning)
	b.WriteString("Determine whether this finding is practically exploitable. Respond with a single JSON object containing: is_exploitable (bool), confidence (0-100), exploitability_score (0-10), entry_point, attack_path (array of {step, description, function_ref}), preconditions (array of strings), impact, poc_code, vulnerability_summary, similar_cases (array of {title, summary, score}, optional, use get_exploit_examples if useful).")
	return b.String()
}

func fallbackReport(err error) models.ExploitVerificationReport {
	return models.ExploitVerificationReport{
		Status:               models.ExploitNeedsReview,
		ExploitabilityScore:  0,
		ConfidenceScore:      0,
		VulnerabilitySummary: fmt.Sprintf("error: %v", err),
	}
}

func reportFromFields(f map[string]any) models.ExploitVerificationReport {
	isExploitable := asBool(f["is_exploitable"])
	confidence := asInt(f["confidence"])
	score := asFloat(f["exploitability_score"])

	report := models.ExploitVerificationReport{
		Status:               models.DeriveExploitStatus(isExploitable, confidence, score),
		ExploitabilityScore:  score,
		ConfidenceScore:      confidence,
		EntryPoint:           asStr(f["entry_point"]),
		Preconditions:        asStrSlice(f["preconditions"]),
		Impact:               asStr(f["impact"]),
		PoCCode:              asStr(f["poc_code"]),
		VulnerabilitySummary: asStr(f["vulnerability_summary"]),
		AttackPath:           asAttackPath(f["attack_path"]),
		SimilarCases:         asSimilarCases(f["similar_cases"]),
	}
	return report
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	default:
		return 0
	}
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asStrSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asAttackPath(v any) []models.AttackStep {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.AttackStep, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, models.AttackStep{
			Step:        asInt(m["step"]),
			Description: asStr(m["description"]),
			FunctionRef: asStr(m["function_ref"]),
		})
	}
	return out
}

func asSimilarCases(v any) []models.SimilarCase {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.SimilarCase, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, models.SimilarCase{
			Title:   asStr(m["title"]),
			Summary: asStr(m["summary"]),
			Score:   float32(asFloat(m["score"])),
		})
	}
	return out
}

// whiteHatFieldExtractor is the WhiteHat role's regex fallback (spec §4.9
// step 10: "WhiteHat is_exploitable, confidence") for when every structural
// JSON-repair strategy fails.
var (
	isExploitablePattern = regexp.MustCompile(`(?i)"?is_exploitable"?\s*[:=]\s*(true|false)`)
	confidencePattern    = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*(\d+)`)
	scorePattern         = regexp.MustCompile(`(?i)"?exploitability_score"?\s*[:=]\s*(\d+(?:\.\d+)?)`)
	summaryPattern       = regexp.MustCompile(`(?is)"?vulnerability_summary"?\s*[:=]\s*"([^"]*)"`)
)

func whiteHatFieldExtractor(text string) map[string]any {
	im := isExploitablePattern.FindStringSubmatch(text)
	if im == nil {
		return nil
	}
	result := map[string]any{"is_exploitable": strings.EqualFold(im[1], "true")}

	if cm := confidencePattern.FindStringSubmatch(text); cm != nil {
		result["confidence"] = jsonrepair.ParseInt(cm[1])
	}
	if sm := scorePattern.FindStringSubmatch(text); sm != nil {
		if f, err := strconv.ParseFloat(sm[1], 64); err == nil {
			result["exploitability_score"] = f
		}
	}
	if vm := summaryPattern.FindStringSubmatch(text); vm != nil {
		result["vulnerability_summary"] = vm[1]
	} else {
		result["vulnerability_summary"] = "recovered via regex field extraction after JSON parse failure"
	}
	return result
}
