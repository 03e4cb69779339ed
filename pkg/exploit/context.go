package exploit

import (
	"fmt"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// buildRetrievalContext assembles the per-finding context the sub-agent
// prompt is built from (spec §4.6 step 1: "target function + callers +
// callees + function purpose + relevant analysis hints").
func buildRetrievalContext(tk *toolkit.Toolkit, f models.Finding) string {
	chunkID := f.Location.Module + "::" + f.Location.Function

	var b strings.Builder
	b.WriteString("-- target function --\n")

	body := f.Phase2FuncContext
	if body == "" {
		body = f.Evidence
	}

	fctx, err := indexer.GetFunctionContext(tk.Index(), chunkID, 1, false)
	if err == nil && fctx.Target != nil {
		if body == "" {
			body = fctx.Target.Body
		}
		fmt.Fprintf(&b, "// %s\n%s\n\n", chunkID, body)

		if len(fctx.Callers) > 0 {
			b.WriteString("-- callers --\n")
			for _, c := range fctx.Callers {
				fmt.Fprintf(&b, "// %s: %s\n", c.ID, c.Signature)
			}
			b.WriteString("\n")
		}
		if len(fctx.Callees) > 0 {
			b.WriteString("-- callees --\n")
			for _, c := range fctx.Callees {
				fmt.Fprintf(&b, "// %s\n%s\n\n", c.ID, c.Body)
			}
		}
	} else {
		fmt.Fprintf(&b, "// %s\n%s\n\n", chunkID, body)
	}

	if ca := tk.ContractAnalysis(); ca != nil {
		if purpose, ok := ca.Purposes[chunkID]; ok && purpose != "" {
			fmt.Fprintf(&b, "-- function purpose --\n%s\n\n", purpose)
		}
		if hints := relevantHints(ca.Hints, f); hints != "" {
			fmt.Fprintf(&b, "-- relevant analysis hints --\n%s\n", hints)
		}
	}

	return b.String()
}

// relevantHints filters Phase 1's analysis hints down to the ones that
// plausibly bear on this finding, matched loosely against its category,
// title, and location — the sub-agent prompt stays small (spec §4.6 step 2:
// "small code window"), so the full hint set is never dumped verbatim.
func relevantHints(hints models.AnalysisHints, f models.Finding) string {
	var b strings.Builder
	needle := strings.ToLower(f.Category + " " + f.Title + " " + f.Location.Function)

	writeMatching := func(label string, items []string) {
		var matched []string
		for _, item := range items {
			if mentionsAny(strings.ToLower(item), needle) {
				matched = append(matched, item)
			}
		}
		if len(matched) > 0 {
			fmt.Fprintf(&b, "%s: %s\n", label, strings.Join(matched, "; "))
		}
	}

	writeMatching("state variables", hints.StateVariables)
	writeMatching("conditional thresholds", hints.ConditionalThresholds)
	writeMatching("dataflow notes", hints.DataflowNotes)
	writeMatching("vulnerability chains", hints.VulnerabilityChains)

	return b.String()
}

// mentionsAny reports whether item and needle share at least one
// whitespace-delimited token of length > 3 — a cheap relevance filter with
// no dependency on an embedding model.
func mentionsAny(item, needle string) bool {
	needleTokens := strings.Fields(needle)
	for _, tok := range strings.Fields(item) {
		if len(tok) <= 3 {
			continue
		}
		for _, nt := range needleTokens {
			if tok == nt {
				return true
			}
		}
	}
	return false
}
