package indexer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// GetFunctionContext assembles the combined view for one function: its own
// chunk, its callers and callees up to depth hops, and (when includeExternal
// is set and idx.Deps is non-nil) ExternalDeps: the RelatedTypes entries of
// the collected callees. Calls into dependency modules that are not in the
// project index are not listed.
func GetFunctionContext(idx *models.ProjectIndex, id string, depth int, includeExternal bool) (*models.FunctionContext, error) {
	target, ok := idx.Chunks[id]
	if !ok {
		return nil, fmt.Errorf("function context: unknown chunk id %q", id)
	}

	ctx := &models.FunctionContext{Target: target}
	if idx.CallGraph == nil {
		ctx.CallgraphMode = models.CallGraphModeNone
		ctx.Warnings = append(ctx.Warnings, "call graph unavailable: caller/callee lists are empty")
		return ctx, nil
	}
	ctx.CallgraphMode = idx.CallGraph.Mode

	if idx.CallGraph.Status != models.CallGraphOK {
		ctx.Warnings = append(ctx.Warnings, fmt.Sprintf("call graph status=%s: caller/callee lists may be incomplete", idx.CallGraph.Status))
	}

	node := idx.CallGraph.Nodes[id]
	if node == nil {
		ctx.Warnings = append(ctx.Warnings, "function not present in call graph nodes")
		return ctx, nil
	}

	seenCallers := map[string]struct{}{}
	seenCallees := map[string]struct{}{}
	ctx.Callers = collectNeighbors(idx, node.CalledBy, depth, true, seenCallers)
	ctx.Callees = collectNeighbors(idx, node.Calls, depth, false, seenCallees)

	if includeExternal && idx.Deps != nil {
		for _, c := range ctx.Callees {
			for ext := range c.RelatedTypes {
				ctx.ExternalDeps = append(ctx.ExternalDeps, ext)
			}
		}
	}
	sort.Strings(ctx.ExternalDeps)
	return ctx, nil
}

func collectNeighbors(idx *models.ProjectIndex, ids map[string]struct{}, depth int, upward bool, seen map[string]struct{}) []*models.CodeChunk {
	if depth <= 0 {
		return nil
	}
	var out []*models.CodeChunk
	var ordered []string
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	for _, id := range ordered {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		chunk, ok := idx.Chunks[id]
		if !ok {
			continue
		}
		out = append(out, chunk)

		node := idx.CallGraph.Nodes[id]
		if node == nil || depth <= 1 {
			continue
		}
		var next map[string]struct{}
		if upward {
			next = node.CalledBy
		} else {
			next = node.Calls
		}
		out = append(out, collectNeighbors(idx, next, depth-1, upward, seen)...)
	}
	return out
}

// GetProjectOverview renders a text summary: module list, struct and public
// function signatures, truncated to stay near maxTokens (approximated as
// 4 characters per token).
func GetProjectOverview(idx *models.ProjectIndex, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = 5000
	}
	budget := maxTokens * 4

	var moduleNames []string
	for name := range idx.Modules {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Project: %d modules\n\n", len(moduleNames)))

	for _, name := range moduleNames {
		if b.Len() >= budget {
			b.WriteString("... (truncated)\n")
			break
		}
		mi := idx.Modules[name]
		b.WriteString(fmt.Sprintf("module %s (%s)\n", name, mi.Path))

		var structNames []string
		for sn := range mi.Structs {
			structNames = append(structNames, sn)
		}
		sort.Strings(structNames)
		for _, sn := range structNames {
			b.WriteString("  " + structSignature(mi.Structs[sn]) + "\n")
		}

		var fnNames []string
		for fn, f := range mi.Functions {
			if f.Visibility == models.VisibilityPublic || f.Visibility == models.VisibilityEntry || f.Visibility == models.VisibilityPublicFriend || f.Visibility == models.VisibilityPublicPackage {
				fnNames = append(fnNames, fn)
			}
		}
		sort.Strings(fnNames)
		for _, fn := range fnNames {
			b.WriteString("  " + mi.Functions[fn].Signature + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SearchCode searches every chunk body for pattern, either as a regex (when
// asRegex) or a plain substring, and returns one SearchMatch per matching
// line, in deterministic chunk-order.
func SearchCode(idx *models.ProjectIndex, pattern string, asRegex bool) ([]models.SearchMatch, error) {
	var re *regexp.Regexp
	if asRegex {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("search_code: invalid regex %q: %w", pattern, err)
		}
	}

	var matches []models.SearchMatch
	for _, id := range idx.ChunkOrder {
		chunk := idx.Chunks[id]
		for i, line := range strings.Split(chunk.Body, "\n") {
			hit := false
			if asRegex {
				hit = re.MatchString(line)
			} else {
				hit = strings.Contains(line, pattern)
			}
			if hit {
				matches = append(matches, models.SearchMatch{ChunkID: id, Line: i + 1, Text: strings.TrimSpace(line)})
			}
		}
	}
	return matches, nil
}

// GetEntryPoints lists every public/entry/public(friend)/public(package)
// function chunk, in deterministic chunk order.
func GetEntryPoints(idx *models.ProjectIndex) []*models.CodeChunk {
	var out []*models.CodeChunk
	for _, id := range idx.ChunkOrder {
		c := idx.Chunks[id]
		if c.ChunkType != models.ChunkFunction {
			continue
		}
		switch c.Visibility {
		case models.VisibilityPublic, models.VisibilityEntry, models.VisibilityPublicFriend, models.VisibilityPublicPackage:
			out = append(out, c)
		}
	}
	return out
}
