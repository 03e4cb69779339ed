package toolkit

import (
	"fmt"
)

// Result is the fixed envelope every tool returns (spec §4.3):
// {success, data, error?, source}.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Source  string `json:"source"`
}

func ok(source string, data any) Result   { return Result{Success: true, Data: data, Source: source} }
func fail(source, format string, a ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, a...), Source: source}
}

type handler func(t *Toolkit, args map[string]any) Result

// registry is the fixed tool set (spec §4.3). Registration order has no
// semantic meaning (unlike pkg/rules); it just matches the table's order
// for readability.
var registry = map[string]handler{
	"get_function_code":           toolGetFunctionCode,
	"get_callers":                 toolGetCallers,
	"get_callees":                 toolGetCallees,
	"get_type_definition":         toolGetTypeDefinition,
	"search_code":                 toolSearchCode,
	"get_project_overview":        toolGetProjectOverview,
	"get_function_context":        toolGetFunctionContext,
	"get_entry_points":            toolGetEntryPoints,
	"get_function_purpose":        toolGetFunctionPurpose,
	"get_analysis_hints":          toolGetAnalysisHints,
	"get_callgraph_summary":       toolGetCallgraphSummary,
	"get_module_structure":        toolGetModuleStructure,
	"get_risky_functions":         toolGetRiskyFunctions,
	"query_security_knowledge":    toolQuerySecurityKnowledge,
	"search_vulnerability_patterns": toolSearchVulnerabilityPatterns,
	"get_exploit_examples":        toolGetExploitExamples,
	"check_flashloan_security":    toolCheckFlashloanSecurity,
}

// requiredParams lists the required argument keys per tool, validated
// before the handler runs (spec §4.3: "Dispatch ... validates required
// parameters").
var requiredParams = map[string][]string{
	"get_function_code":   {"module", "function"},
	"get_callers":         {"module", "function"},
	"get_callees":         {"module", "function"},
	"get_type_definition": {"type_name"},
	"search_code":         {"pattern"},
	"get_function_context": {"module", "function"},
	"get_function_purpose": {"function_id"},
	"search_vulnerability_patterns": {"query"},
	"get_exploit_examples":          {"vuln_type"},
}

// ToolNames lists every registered tool name, in no particular order. The
// provider-facing ToolDefinition set comes from Definitions, not from here.
func ToolNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// CallTool dispatches name with args on behalf of caller (an agent role
// tag, e.g. "auditor", "verifier"), converting a missing tool, a missing
// required parameter, or a handler panic into a {success:false} Result
// rather than a Go error — an "error as content" convention, since the LLM
// is meant to see and react to the failure, not crash the call site.
func (t *Toolkit) CallTool(name string, args map[string]any, caller string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = fail(name, "tool panic: %v", r)
		}
		t.recordCall(CallLogEntry{Tool: name, Caller: caller, ArgsSummary: summarizeArgs(args), Success: result.Success})
	}()

	h, known := registry[name]
	if !known {
		return fail(name, "unknown tool %q", name)
	}
	for _, req := range requiredParams[name] {
		if _, present := args[req]; !present {
			return fail(name, "missing required parameter %q", req)
		}
	}
	return h(t, args)
}

func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	out := "{"
	first := true
	for k, v := range args {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%s=%v", k, v)
	}
	return out + "}"
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
