package models

// Severity ranks a finding's impact. Order matters: it is the primary sort
// key for the final report (critical > high > medium > low > advisory).
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityHigh      Severity = "high"
	SeverityMedium    Severity = "medium"
	SeverityLow       Severity = "low"
	SeverityAdvisory  Severity = "advisory"
	SeverityNone      Severity = "none" // only valid when verification_status=false_positive
)

// severityRank gives the sort order for Severity; lower is more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
	SeverityAdvisory:  4,
	SeverityNone:      5,
}

// Rank returns the sort position for s; unknown severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Location pins a finding to the source it was observed in.
type Location struct {
	Module      string `json:"module"`
	Function    string `json:"function,omitempty"`
	CodeSnippet string `json:"code_snippet,omitempty"`
}

// SoftFilterHint is the advisory annotation an exclusion rule attaches to a
// finding. It never removes the finding; the hint is surfaced to the
// verifier prompt as extra context (spec §4.7).
type SoftFilterHint struct {
	RuleName  string `json:"rule_name"`
	Reason    string `json:"reason"`
	HintForAI string `json:"hint_for_ai"`
}

// Finding is a raw vulnerability observation produced by Phase 2 and
// mutated (annotation-only, never rewritten) by every later phase.
type Finding struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Location       Location `json:"location"`
	Evidence       string   `json:"evidence,omitempty"`
	Proof          string   `json:"proof,omitempty"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`

	// Phase-added annotations. Earlier phases never clear a later phase's
	// writes to these fields and vice versa — each phase only adds.
	Phase2Context     string          `json:"_phase2_context,omitempty"`
	Phase2FuncContext string          `json:"_phase2_func_context,omitempty"`
	ModuleName        string          `json:"_module_name,omitempty"`
	SoftFilterHint    *SoftFilterHint `json:"soft_filter_hint,omitempty"`
	Confidence        int             `json:"confidence,omitempty"` // 0-100

	// InputIndex preserves the position the finding entered Phase 3 at, so
	// output ordering can be reconstructed regardless of completion order
	// (spec §5 ordering guarantees).
	InputIndex int `json:"-"`
}

// Clone returns a shallow copy safe to annotate independently; SoftFilterHint
// is copied by value so mutating the clone's hint never touches the
// original finding (findings are "passed by value (or copy-on-annotate)"
// per spec §3 Lifecycles).
func (f Finding) Clone() Finding {
	c := f
	if f.SoftFilterHint != nil {
		hint := *f.SoftFilterHint
		c.SoftFilterHint = &hint
	}
	return c
}

// DedupKey identifies a finding for the BA/TA union-dedup step (spec §9,
// third open question): same module, function, and category collapse to
// one finding.
func (f Finding) DedupKey() string {
	return f.Location.Module + "::" + f.Location.Function + "::" + f.Category
}
