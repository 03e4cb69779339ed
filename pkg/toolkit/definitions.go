package toolkit

import "github.com/sui-sentry/auditengine/pkg/llm"

// schema is a tiny JSON-schema object builder for tool parameter specs.
func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}
func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// Definitions returns the fixed tool set's provider-facing ToolDefinitions
// (spec §4.3), written out alongside the dispatch registry with one entry
// per registered tool. This is the one list every agent role draws its tool
// subset from (spec §9: "Model the difference as configuration, not
// inheritance" — a role's tool subset is just a filtered slice of this).
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{Name: "get_function_code", Description: "Retrieve the source body of a function by module and name.",
			Parameters: schema(map[string]any{"module": strProp("module qualified name"), "function": strProp("function name")}, "module", "function")},
		{Name: "get_callers", Description: "List functions that call the given function, via the call graph.",
			Parameters: schema(map[string]any{"module": strProp("module"), "function": strProp("function"), "depth": intProp("traversal depth, default 2")}, "module", "function")},
		{Name: "get_callees", Description: "List functions called by the given function, via the call graph.",
			Parameters: schema(map[string]any{"module": strProp("module"), "function": strProp("function"), "depth": intProp("traversal depth, default 2")}, "module", "function")},
		{Name: "get_type_definition", Description: "Look up a struct or constant definition by (possibly generic) type name.",
			Parameters: schema(map[string]any{"type_name": strProp("type name, generics allowed")}, "type_name")},
		{Name: "search_code", Description: "Search all indexed code for a pattern (regex or substring).",
			Parameters: schema(map[string]any{"pattern": strProp("search pattern"), "regex": boolProp("treat pattern as regex, default true")}, "pattern")},
		{Name: "get_project_overview", Description: "Get a truncated text summary of the whole project: modules, structs, public function signatures.",
			Parameters: schema(map[string]any{"max_tokens": intProp("approximate token budget, default 5000")})},
		{Name: "get_function_context", Description: "Get the combined view of a function: target body, callers, callees, external deps, related types.",
			Parameters: schema(map[string]any{"module": strProp("module"), "function": strProp("function"), "depth": intProp("traversal depth, default 2")}, "module", "function")},
		{Name: "get_entry_points", Description: "List every public/entry function in the project.",
			Parameters: schema(map[string]any{})},
		{Name: "get_function_purpose", Description: "Get the Phase 1 natural-language purpose description for a function.",
			Parameters: schema(map[string]any{"function_id": strProp("chunk id, module::function")}, "function_id")},
		{Name: "get_analysis_hints", Description: "Get Phase 1 structural analysis hints (state variables, thresholds, dataflow, vulnerability chains).",
			Parameters: schema(map[string]any{"hint_type": strProp("all|state_variables|conditional_thresholds|dataflow|vulnerability_chains")})},
		{Name: "get_callgraph_summary", Description: "Summarize the call graph: node/edge counts, entry points, leaves, cross-module calls, risky functions.",
			Parameters: schema(map[string]any{"include_edges": boolProp("include the full edge list, default false")})},
		{Name: "get_module_structure", Description: "List structs, functions, and imports for one module, or every module if module_name is omitted.",
			Parameters: schema(map[string]any{"module_name": strProp("optional module qualified name")})},
		{Name: "get_risky_functions", Description: "Filter functions by heuristic risk indicator.",
			Parameters: schema(map[string]any{"risk_type": strProp("funds|state|access|all")})},
		{Name: "query_security_knowledge", Description: "Look up a static Move/Sui security knowledge base topic.",
			Parameters: schema(map[string]any{"topic": strProp("topic or alias"), "include_examples": boolProp("include code examples, default true")}, "topic")},
		{Name: "search_vulnerability_patterns", Description: "Vector-search an external vulnerability pattern corpus (optional; errors if not configured).",
			Parameters: schema(map[string]any{"query": strProp("search query"), "top_k": intProp("result count, default 5"), "severity_filter": strProp("optional severity filter")}, "query")},
		{Name: "get_exploit_examples", Description: "Vector-search an external exploit example corpus (optional; errors if not configured).",
			Parameters: schema(map[string]any{"vuln_type": strProp("vulnerability type"), "top_k": intProp("result count, default 3")}, "vuln_type")},
		{Name: "check_flashloan_security", Description: "Deterministically inspect a flashloan receipt struct and its repay function for type/amount/pool-id checks.",
			Parameters: schema(map[string]any{"receipt_type": strProp("optional receipt struct name"), "repay_function": strProp("optional repay function name")})},
	}
}

// roleToolSubsets names which tools each agent role is given (spec §4.4 /
// §9: roles differ only by prompt plus tool subset). Analyst focuses on
// structure, Auditor on broad code retrieval, Verifier adds knowledge/
// pattern lookup, WhiteHat narrows to what an exploit write-up needs.
var roleToolSubsets = map[string][]string{
	"analyst": {
		"get_project_overview", "get_module_structure", "get_entry_points",
		"get_callgraph_summary", "get_function_code", "search_code",
	},
	"auditor": {
		"get_function_code", "get_callers", "get_callees", "get_type_definition",
		"search_code", "get_function_context", "get_entry_points",
		"get_function_purpose", "get_analysis_hints", "get_risky_functions",
		"check_flashloan_security",
	},
	"verifier": {
		"get_function_code", "get_callers", "get_callees", "get_type_definition",
		"get_function_context", "query_security_knowledge",
		"search_vulnerability_patterns", "check_flashloan_security",
	},
	"manager": {
		"get_function_context", "query_security_knowledge",
	},
	"whitehat": {
		"get_function_code", "get_callers", "get_callees", "get_function_purpose",
		"get_analysis_hints", "get_exploit_examples", "check_flashloan_security",
	},
}

// DefinitionsForRole filters Definitions() down to the named role's subset.
// An unknown role gets the full set, so a misconfigured role name degrades
// to "too many tools" rather than "no tools".
func DefinitionsForRole(role string) []llm.ToolDefinition {
	subset, known := roleToolSubsets[role]
	all := Definitions()
	if !known {
		return all
	}
	allowed := make(map[string]struct{}, len(subset))
	for _, n := range subset {
		allowed[n] = struct{}{}
	}
	out := make([]llm.ToolDefinition, 0, len(subset))
	for _, d := range all {
		if _, ok := allowed[d.Name]; ok {
			out = append(out, d)
		}
	}
	return out
}
