package toolkit

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/models"
)

// chunkID builds the "module::name" id spec.md's data model mandates.
func chunkID(module, name string) string { return module + "::" + name }

// toolGetFunctionCode returns a function chunk body, falling back to the
// dependency resolver for stdlib/framework functions, and auto-correcting
// a mismatched-but-unique function name across modules (spec §4.3).
func toolGetFunctionCode(t *Toolkit, args map[string]any) Result {
	module := stringArg(args, "module", "")
	function := stringArg(args, "function", "")

	if c, found := t.index.Chunks[chunkID(module, function)]; found && c.ChunkType == models.ChunkFunction {
		return ok("project_index", map[string]any{
			"body": c.Body, "signature": c.Signature, "visibility": c.Visibility,
		})
	}

	// Auto-correct: if exactly one function anywhere in the project has this
	// name, use it and annotate the mismatch.
	var matches []*models.CodeChunk
	for _, id := range t.index.ChunkOrder {
		c := t.index.Chunks[id]
		if c.ChunkType == models.ChunkFunction && c.Name == function {
			matches = append(matches, c)
		}
	}
	if len(matches) == 1 {
		c := matches[0]
		return ok("project_index", map[string]any{
			"body": c.Body, "signature": c.Signature, "visibility": c.Visibility,
			"_auto_corrected": true, "_corrected_module": c.Module,
		})
	}

	if body, found := t.index.Deps.FindFunction(module, function); found {
		return ok("dependency_resolver", map[string]any{"body": body})
	}

	if len(matches) > 1 {
		return fail("project_index", "function %q is ambiguous across %d modules", function, len(matches))
	}
	return fail("project_index", "function %s::%s not found", module, function)
}


func toolGetCallers(t *Toolkit, args map[string]any) Result {
	return callgraphNeighbors(t, args, true)
}

func toolGetCallees(t *Toolkit, args map[string]any) Result {
	return callgraphNeighbors(t, args, false)
}

func callgraphNeighbors(t *Toolkit, args map[string]any, callers bool) Result {
	module := stringArg(args, "module", "")
	function := stringArg(args, "function", "")
	depth := intArg(args, "depth", 2)
	id := chunkID(module, function)

	if t.index.CallGraph == nil || t.index.CallGraph.Status != models.CallGraphOK {
		return suggestFromChunks(t, function, callers)
	}

	fc, err := indexer.GetFunctionContext(t.index, id, depth, false)
	if err != nil {
		return fail("callgraph", "%s", err)
	}
	var list []*models.CodeChunk
	if callers {
		list = fc.Callers
	} else {
		list = fc.Callees
	}
	return ok("callgraph", summarizeChunks(list))
}

// suggestFromChunks is the fallback spec §4.3 names: "when the graph is
// unavailable, suggestions from the chunk index" — name-based candidates
// rather than a definitive caller/callee answer.
func suggestFromChunks(t *Toolkit, function string, callers bool) Result {
	var suggestions []string
	for _, id := range t.index.ChunkOrder {
		c := t.index.Chunks[id]
		if c.ChunkType != models.ChunkFunction || c.Name == function {
			continue
		}
		if strings.Contains(c.Body, function+"(") {
			suggestions = append(suggestions, c.ID)
		}
	}
	return fail("callgraph", "callgraph unavailable: %d name-based suggestions: %s",
		len(suggestions), strings.Join(suggestions, ", "))
}

func summarizeChunks(chunks []*models.CodeChunk) []map[string]any {
	out := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, map[string]any{
			"id": c.ID, "signature": c.Signature, "visibility": c.Visibility,
		})
	}
	return out
}

var genericsPattern = regexp.MustCompile(`<[^>]*>`)

// toolGetTypeDefinition strips generic parameters off type_name, then
// searches structs, then constants, then the dependency cache. It
// distinguishes string-literal-derived identifiers (quoted in source) so a
// literal never gets misread as a type name (spec §4.3).
func toolGetTypeDefinition(t *Toolkit, args map[string]any) Result {
	raw := stringArg(args, "type_name", "")
	name := genericsPattern.ReplaceAllString(raw, "")
	if idx := strings.LastIndex(name, "::"); idx >= 0 {
		name = name[idx+2:]
	}
	name = strings.TrimSpace(name)

	for _, mi := range t.index.Modules {
		if _, isLiteral := mi.StringLiterals[name]; isLiteral {
			return fail("project_index", "%q is a string literal, not a type", name)
		}
	}

	for _, mi := range t.index.Modules {
		if s, found := mi.Structs[name]; found {
			return ok("project_index", map[string]any{
				"kind": "struct", "module": mi.QualifiedName(),
				"abilities": s.Abilities, "is_hot_potato": s.IsHotPotato, "body": s.Body,
			})
		}
	}
	for _, mi := range t.index.Modules {
		if v, found := mi.Constants[name]; found {
			return ok("project_index", map[string]any{"kind": "constant", "module": mi.QualifiedName(), "value": v})
		}
	}
	if body, found := t.index.Deps.FindFunction("", name); found {
		return ok("dependency_resolver", map[string]any{"kind": "external", "body": body})
	}
	return fail("project_index", "type %q not found", name)
}

func toolSearchCode(t *Toolkit, args map[string]any) Result {
	pattern := stringArg(args, "pattern", "")
	asRegex := boolArg(args, "regex", true)
	matches, err := indexer.SearchCode(t.index, pattern, asRegex)
	if err != nil {
		return fail("project_index", "%s", err)
	}
	return ok("project_index", matches)
}

func toolGetProjectOverview(t *Toolkit, args map[string]any) Result {
	maxTokens := intArg(args, "max_tokens", 5000)
	return ok("project_index", indexer.GetProjectOverview(t.index, maxTokens))
}

func toolGetFunctionContext(t *Toolkit, args map[string]any) Result {
	module := stringArg(args, "module", "")
	function := stringArg(args, "function", "")
	depth := intArg(args, "depth", 2)
	fc, err := indexer.GetFunctionContext(t.index, chunkID(module, function), depth, true)
	if err != nil {
		return fail("project_index", "%s", err)
	}
	return ok("project_index", fc)
}

func toolGetEntryPoints(t *Toolkit, _ map[string]any) Result {
	return ok("project_index", summarizeChunks(indexer.GetEntryPoints(t.index)))
}

func toolGetFunctionPurpose(t *Toolkit, args map[string]any) Result {
	id := stringArg(args, "function_id", "")
	ca := t.ContractAnalysis()
	if ca == nil {
		return fail("contract_analysis", "phase 1 has not run yet")
	}
	purpose, ok2 := ca.Purposes[id]
	if !ok2 {
		return fail("contract_analysis", "no purpose recorded for %q", id)
	}
	return ok("contract_analysis", purpose)
}

func toolGetAnalysisHints(t *Toolkit, args map[string]any) Result {
	hintType := stringArg(args, "hint_type", "all")
	ca := t.ContractAnalysis()
	if ca == nil {
		return fail("contract_analysis", "phase 1 has not run yet")
	}
	switch hintType {
	case "state_variables":
		return ok("contract_analysis", ca.Hints.StateVariables)
	case "conditional_thresholds":
		return ok("contract_analysis", ca.Hints.ConditionalThresholds)
	case "dataflow":
		return ok("contract_analysis", ca.Hints.DataflowNotes)
	case "vulnerability_chains":
		return ok("contract_analysis", ca.Hints.VulnerabilityChains)
	default:
		return ok("contract_analysis", ca.Hints)
	}
}

func toolGetCallgraphSummary(t *Toolkit, args map[string]any) Result {
	includeEdges := boolArg(args, "include_edges", false)
	g := t.index.CallGraph
	if g == nil {
		return fail("callgraph", "callgraph unavailable")
	}
	summary := map[string]any{
		"status": g.Status, "mode": g.Mode,
		"node_count": len(g.Nodes), "edge_count": len(g.Edges),
	}
	var leaves, crossModule, risky []string
	for id, n := range g.Nodes {
		if len(n.Calls) == 0 {
			leaves = append(leaves, id)
		}
		for risk, on := range n.RiskIndicators {
			if on && risk != "entry_point" {
				risky = append(risky, id)
				break
			}
		}
	}
	for _, e := range g.Edges {
		if moduleOf(e.Caller) != moduleOf(e.Callee) {
			crossModule = append(crossModule, e.Caller+" -> "+e.Callee)
		}
	}
	sort.Strings(leaves)
	sort.Strings(risky)
	sort.Strings(crossModule)
	summary["leaves"] = leaves
	summary["risky_functions"] = risky
	summary["cross_module_calls"] = crossModule
	summary["entry_points"] = summarizeChunks(indexer.GetEntryPoints(t.index))
	if includeEdges {
		summary["edges"] = g.Edges
	}
	return ok("callgraph", summary)
}

func moduleOf(chunkID string) string {
	if i := strings.LastIndex(chunkID, "::"); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}

func toolGetModuleStructure(t *Toolkit, args map[string]any) Result {
	name := stringArg(args, "module_name", "")
	if name != "" {
		mi, found := t.index.Modules[name]
		if !found {
			return fail("project_index", "module %q not found", name)
		}
		return ok("project_index", moduleSummary(mi))
	}
	var all []map[string]any
	var names []string
	for n := range t.index.Modules {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		all = append(all, moduleSummary(t.index.Modules[n]))
	}
	return ok("project_index", all)
}

func moduleSummary(mi *models.ModuleInfo) map[string]any {
	var structs, funcs []string
	for s := range mi.Structs {
		structs = append(structs, s)
	}
	for f := range mi.Functions {
		funcs = append(funcs, f)
	}
	sort.Strings(structs)
	sort.Strings(funcs)
	return map[string]any{
		"module": mi.QualifiedName(), "path": mi.Path,
		"structs": structs, "functions": funcs, "imports": mi.Imports,
	}
}

// riskTypeChecks maps a risk_type query parameter to the RiskIndicators key
// it filters on; "all" matches any indicator being true.
var riskTypeChecks = map[string]string{
	"funds":  "touches_funds",
	"state":  "mutates_state",
	"access": "checks_access",
}

func toolGetRiskyFunctions(t *Toolkit, args map[string]any) Result {
	riskType := stringArg(args, "risk_type", "all")
	var out []map[string]any
	for _, id := range t.index.ChunkOrder {
		c := t.index.Chunks[id]
		if c.ChunkType != models.ChunkFunction {
			continue
		}
		if riskType == "all" {
			for k, v := range c.RiskIndicators {
				if v && k != "entry_point" && k != "has_generics" {
					out = append(out, map[string]any{"id": c.ID, "signature": c.Signature, "risk_indicators": c.RiskIndicators})
					break
				}
			}
			continue
		}
		key, known := riskTypeChecks[riskType]
		if known && c.RiskIndicators[key] {
			out = append(out, map[string]any{"id": c.ID, "signature": c.Signature, "risk_indicators": c.RiskIndicators})
		}
	}
	return ok("project_index", out)
}

func toolQuerySecurityKnowledge(t *Toolkit, args map[string]any) Result {
	topic := stringArg(args, "topic", "")
	includeExamples := boolArg(args, "include_examples", true)
	entry, found := LookupKnowledge(topic)
	if !found {
		return fail("security_knowledge", "no knowledge entry for topic %q", topic)
	}
	data := map[string]any{"topic": entry.Topic, "summary": entry.Summary, "aliases": entry.Aliases}
	if includeExamples {
		data["examples"] = entry.Examples
	}
	return ok("security_knowledge", data)
}

func toolSearchVulnerabilityPatterns(t *Toolkit, args map[string]any) Result {
	if t.vectorSearch == nil {
		return fail("vector_corpus", "vulnerability pattern corpus unavailable")
	}
	query := stringArg(args, "query", "")
	topK := intArg(args, "top_k", 5)
	severity := stringArg(args, "severity_filter", "")
	matches, err := t.vectorSearch.SearchPatterns(query, topK, severity)
	if err != nil {
		return fail("vector_corpus", "%s", err)
	}
	return ok("vector_corpus", matches)
}

func toolGetExploitExamples(t *Toolkit, args map[string]any) Result {
	if t.vectorSearch == nil {
		return fail("vector_corpus", "exploit example corpus unavailable")
	}
	vulnType := stringArg(args, "vuln_type", "")
	topK := intArg(args, "top_k", 3)
	matches, err := t.vectorSearch.SearchExploitExamples(vulnType, topK)
	if err != nil {
		return fail("vector_corpus", "%s", err)
	}
	return ok("vector_corpus", matches)
}
