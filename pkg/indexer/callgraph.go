package indexer

import (
	"regexp"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// callPattern recognizes both a same-module call (bare identifier) and a
// cross-module call (module::function). It deliberately over-matches and
// relies on the caller resolving matches against known chunk ids — any
// identifier that happens to look like a call but isn't a real function
// name is simply dropped during resolution.
var callPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*(?:::[A-Za-z_][A-Za-z0-9_]*)?)\s*\(`)

// keywords that callPattern's generic identifier-before-paren shape would
// otherwise misidentify as function calls.
var moveKeywords = map[string]struct{}{
	"if": {}, "while": {}, "loop": {}, "return": {}, "assert": {}, "abort": {},
	"let": {}, "move": {}, "copy": {}, "vector": {}, "freeze": {},
}

// BuildCallGraph statically resolves function calls by regex over every
// function chunk's body (spec §4.2's regex call-graph mode — no LSP
// integration is available in this deployment, so CallGraphModeRegex is the
// only mode ever produced; CallGraphModeLSP is defined for API completeness
// but never selected).
func BuildCallGraph(idx *models.ProjectIndex) *models.CallGraph {
	g := &models.CallGraph{
		Nodes:  map[string]*models.FunctionNode{},
		Mode:   models.CallGraphModeRegex,
		Status: models.CallGraphNotBuilt,
	}

	funcChunks := map[string]*models.CodeChunk{}
	for id, c := range idx.Chunks {
		if c.ChunkType == models.ChunkFunction {
			funcChunks[id] = c
			g.Nodes[id] = &models.FunctionNode{
				ID:             id,
				Visibility:     c.Visibility,
				RiskIndicators: c.RiskIndicators,
				CalledBy:       map[string]struct{}{},
				Calls:          map[string]struct{}{},
			}
		}
	}
	if len(funcChunks) == 0 {
		g.Status = models.CallGraphEmpty
		return g
	}

	// byBareName supports resolving an unqualified call within the caller's
	// own module, and falls back to a unique-name match across the whole
	// project when the call isn't qualified and isn't local.
	byBareName := map[string][]string{}
	for id, c := range funcChunks {
		byBareName[c.Name] = append(byBareName[c.Name], id)
	}

	for callerID, chunk := range funcChunks {
		for _, m := range callPattern.FindAllStringSubmatch(chunk.Body, -1) {
			raw := m[1]
			base := raw
			if idx2 := strings.LastIndex(raw, "::"); idx2 >= 0 {
				base = raw[idx2+2:]
			}
			if _, isKeyword := moveKeywords[base]; isKeyword {
				continue
			}

			calleeID := resolveCallee(raw, chunk.Module, funcChunks, byBareName)
			if calleeID == "" || calleeID == callerID {
				continue
			}
			g.Nodes[callerID].Calls[calleeID] = struct{}{}
			if callee, ok := g.Nodes[calleeID]; ok {
				callee.CalledBy[callerID] = struct{}{}
			}
			g.Edges = append(g.Edges, models.CallGraphEdge{Caller: callerID, Callee: calleeID})
		}
	}

	g.Status = models.CallGraphOK
	return g
}

func resolveCallee(raw, callerModule string, funcChunks map[string]*models.CodeChunk, byBareName map[string][]string) string {
	if strings.Contains(raw, "::") {
		parts := strings.Split(raw, "::")
		name := parts[len(parts)-1]
		modulePart := strings.Join(parts[:len(parts)-1], "::")
		for id, c := range funcChunks {
			if c.Name == name && strings.HasSuffix(c.Module, modulePart) {
				return id
			}
		}
		// Cross-module call into a dependency we didn't index (e.g.
		// sui::coin::mint); such calls get no edge in the graph.
		return ""
	}

	local := callerModule + "::" + raw
	if _, ok := funcChunks[local]; ok {
		return local
	}
	if candidates := byBareName[raw]; len(candidates) == 1 {
		return candidates[0]
	}
	return ""
}
