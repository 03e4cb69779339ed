// Package toolkit implements the Agent Toolkit (spec §4.3): a fixed,
// typed set of tools backed by the read-only ProjectIndex that every LLM
// agent calls through. Name-based tool routing plus
// dispatch-with-recovered-panic ("error as content, not as Go error",
// best-effort logging) collapsed from remote-MCP-server routing down to
// direct in-process handler dispatch, since spec §4.3 describes a closed,
// fixed tool set over an in-memory index rather than a pluggable server
// registry.
package toolkit

import (
	"log/slog"
	"sync"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// ContractAnalysis is the Phase-1 output (spec §4.1 Phase 1): analysis
// hints plus per-function purpose descriptions. It is written exactly once,
// after Phase 1 completes, and read many times by every later phase — the
// single-writer/many-readers shape spec §5 calls for ("a mutex guards this
// single write").
type ContractAnalysis struct {
	Hints     AnalysisHints
	Purposes  map[string]string // function id -> natural-language purpose
}

// AnalysisHints holds the Phase-1 Analyst output: key state variables,
// conditional thresholds, cross-function dataflow notes, and potential
// vulnerability chains (spec §4.1 Phase 1).
type AnalysisHints struct {
	StateVariables       []string `json:"state_variables,omitempty"`
	ConditionalThresholds []string `json:"conditional_thresholds,omitempty"`
	DataflowNotes        []string `json:"dataflow_notes,omitempty"`
	VulnerabilityChains  []string `json:"vulnerability_chains,omitempty"`
}

// VectorSearcher is the optional external-corpus backend for
// search_vulnerability_patterns / get_exploit_examples (spec §4.3). A nil
// VectorSearcher means the corpus is absent; the corresponding tools then
// return {success:false, error:...} per spec, rather than panicking on a
// nil call.
type VectorSearcher interface {
	SearchPatterns(query string, topK int, severityFilter string) ([]PatternMatch, error)
	SearchExploitExamples(vulnType string, topK int) ([]PatternMatch, error)
}

// PatternMatch is one hit from the vector corpus.
type PatternMatch struct {
	Title    string
	Summary  string
	Severity string
	Score    float32
}

// Toolkit is the single source of truth for code context during one audit.
// It is safe for concurrent use by every agent instance across every phase:
// the ProjectIndex is read-only after Phase 0, and the one writable field
// (contract analysis) is guarded by its own mutex.
type Toolkit struct {
	index *models.ProjectIndex

	vectorSearch VectorSearcher // nil-able

	contractMu sync.RWMutex
	contract   *ContractAnalysis

	logMu sync.Mutex
	calls []CallLogEntry
}

// CallLogEntry records one CallTool invocation for diagnostics (spec §4.3:
// "All tool calls are logged with the calling agent's role tag.").
type CallLogEntry struct {
	Tool    string
	Caller  string
	ArgsSummary string
	Success bool
}

// New builds a Toolkit over idx. vectorSearch may be nil.
func New(idx *models.ProjectIndex, vectorSearch VectorSearcher) *Toolkit {
	return &Toolkit{index: idx, vectorSearch: vectorSearch}
}

// Index exposes the underlying ProjectIndex for components (Phase 2/3/4)
// that need direct read access beyond the tool surface (e.g. Phase 3's
// context assembly, which is not itself an LLM-facing tool call).
func (t *Toolkit) Index() *models.ProjectIndex { return t.index }

// SetContractAnalysis performs the single Phase-1 write. Calling it twice
// is a caller bug (Phase 1 runs once per audit) but is tolerated — the
// second write simply replaces the first, logged at warn level.
func (t *Toolkit) SetContractAnalysis(ca *ContractAnalysis) {
	t.contractMu.Lock()
	defer t.contractMu.Unlock()
	if t.contract != nil {
		slog.Warn("toolkit: contract analysis overwritten; expected exactly one Phase 1 write")
	}
	t.contract = ca
}

// ContractAnalysis returns the Phase-1 output, or nil if Phase 1 hasn't run
// yet (e.g. a tool call issued unexpectedly early).
func (t *Toolkit) ContractAnalysis() *ContractAnalysis {
	t.contractMu.RLock()
	defer t.contractMu.RUnlock()
	return t.contract
}

func (t *Toolkit) recordCall(entry CallLogEntry) {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	t.calls = append(t.calls, entry)
	slog.Debug("toolkit call", "tool", entry.Tool, "caller", entry.Caller, "args", entry.ArgsSummary, "success", entry.Success)
}

// CallLog returns a copy of every recorded call, in order (diagnostics/tests).
func (t *Toolkit) CallLog() []CallLogEntry {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	out := make([]CallLogEntry, len(t.calls))
	copy(out, t.calls)
	return out
}
