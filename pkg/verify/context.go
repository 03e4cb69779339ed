package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/rules"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// RetrievalCounts tallies which code-retrieval path satisfied each finding
// in a group (spec §4.5 Step 2: "record which retrieval path succeeded").
type RetrievalCounts struct {
	Phase2Hits  int
	ToolkitHits int
	EvidenceHits int
}

func (c *RetrievalCounts) add(o RetrievalCounts) {
	c.Phase2Hits += o.Phase2Hits
	c.ToolkitHits += o.ToolkitHits
	c.EvidenceHits += o.EvidenceHits
}

// groupContext is the Step 3 output built exactly once per group: a shared
// code context (target bodies + one-hop callees + one-hop caller
// signatures) and a shared knowledge bundle (deduplicated topic knowledge,
// soft-filter hints, preliminary false-positive flags).
type groupContext struct {
	CodeContext      string
	KnowledgeBundle  string
	Retrieval        RetrievalCounts
}

// buildGroupContext assembles the shared context for one module-grouped
// batch of findings (spec §4.5 Step 3). Findings are expected to already
// carry any soft_filter_hint from Step 1.
func buildGroupContext(tk *toolkit.Toolkit, findings []models.Finding) groupContext {
	idx := tk.Index()

	bodies := map[string]string{}     // chunk id -> body, targets only
	bodyOrder := []string{}
	callees := map[string]string{}    // chunk id -> body, one-hop callees
	calleeOrder := []string{}
	callerSigs := map[string]string{} // chunk id -> signature, one-hop callers
	callerOrder := []string{}

	var counts RetrievalCounts

	for _, f := range findings {
		chunkID := f.Location.Module + "::" + f.Location.Function

		switch {
		case f.Phase2FuncContext != "":
			if _, seen := bodies[chunkID]; !seen {
				bodies[chunkID] = f.Phase2FuncContext
				bodyOrder = append(bodyOrder, chunkID)
			}
			counts.Phase2Hits++
			continue
		}

		fctx, err := indexer.GetFunctionContext(idx, chunkID, 1, false)
		if err == nil && fctx.Target != nil {
			if _, seen := bodies[chunkID]; !seen {
				bodies[chunkID] = fctx.Target.Body
				bodyOrder = append(bodyOrder, chunkID)
			}
			for _, c := range fctx.Callees {
				if _, seen := callees[c.ID]; !seen {
					callees[c.ID] = c.Body
					calleeOrder = append(calleeOrder, c.ID)
				}
			}
			for _, c := range fctx.Callers {
				if _, seen := callerSigs[c.ID]; !seen {
					callerSigs[c.ID] = c.Signature
					callerOrder = append(callerOrder, c.ID)
				}
			}
			counts.ToolkitHits++
			continue
		}

		if _, seen := bodies[chunkID]; !seen {
			bodies[chunkID] = f.Evidence
			bodyOrder = append(bodyOrder, chunkID)
		}
		counts.EvidenceHits++
	}

	var code strings.Builder
	code.WriteString("-- target functions --\n")
	for _, id := range bodyOrder {
		fmt.Fprintf(&code, "// %s\n%s\n\n", id, bodies[id])
	}
	if len(calleeOrder) > 0 {
		code.WriteString("-- one-hop callees --\n")
		for _, id := range calleeOrder {
			fmt.Fprintf(&code, "// %s\n%s\n\n", id, callees[id])
		}
	}
	if len(callerOrder) > 0 {
		code.WriteString("-- one-hop caller signatures (layered-design evidence) --\n")
		for _, id := range callerOrder {
			fmt.Fprintf(&code, "// %s: %s\n", id, callerSigs[id])
		}
	}

	return groupContext{
		CodeContext:     code.String(),
		KnowledgeBundle: buildKnowledgeBundle(findings),
		Retrieval:       counts,
	}
}

// buildKnowledgeBundle deduplicates topic knowledge matched to each
// finding's category/title, soft-filter hints already attached by the
// rules engine, and a preliminary false-positive flag from the static
// heuristic (spec §4.5 Step 3, second bullet).
func buildKnowledgeBundle(findings []models.Finding) string {
	seenTopics := map[string]struct{}{}
	var b strings.Builder

	b.WriteString("-- relevant security knowledge --\n")
	for _, f := range findings {
		for _, topic := range []string{f.Category, f.Title} {
			entry, ok := toolkit.LookupKnowledge(topic)
			if !ok {
				continue
			}
			if _, dup := seenTopics[entry.Topic]; dup {
				continue
			}
			seenTopics[entry.Topic] = struct{}{}
			fmt.Fprintf(&b, "[%s] %s\n", entry.Topic, entry.Summary)
		}
	}

	b.WriteString("\n-- soft-filter hints --\n")
	for _, f := range findings {
		if f.SoftFilterHint == nil {
			continue
		}
		fmt.Fprintf(&b, "vuln_index finding %q (%s): %s — %s\n",
			f.Title, f.SoftFilterHint.RuleName, f.SoftFilterHint.Reason, f.SoftFilterHint.HintForAI)
	}

	b.WriteString("\n-- preliminary false-positive flags --\n")
	for _, f := range findings {
		if likely, reason := rules.IsLikelyFalsePositive(f.Category, f.Description); likely {
			fmt.Fprintf(&b, "finding %q: %s\n", f.Title, reason)
		}
	}

	return b.String()
}

// groupFindings buckets findings by module (modules in sorted order); each
// bucket is chunked into groups of up to groupSize (spec §4.5 Step 2).
func groupFindings(findings []models.Finding, groupSize int) [][]models.Finding {
	if groupSize <= 0 {
		groupSize = 5
	}

	byModule := map[string][]models.Finding{}
	var modules []string
	for _, f := range findings {
		m := f.Location.Module
		if _, ok := byModule[m]; !ok {
			modules = append(modules, m)
		}
		byModule[m] = append(byModule[m], f)
	}
	sort.Strings(modules)

	var groups [][]models.Finding
	for _, m := range modules {
		bucket := byModule[m]
		for i := 0; i < len(bucket); i += groupSize {
			end := i + groupSize
			if end > len(bucket) {
				end = len(bucket)
			}
			groups = append(groups, bucket[i:end])
		}
	}
	return groups
}
