package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

const (
	phase1BatchSize  = 5
	phase1MaxInFlight = 3
)

// runPhase1 drives the Analyst agent over the indexed project (spec §4.1
// Phase 1): one whole-project call for analysis_hints, then batched
// per-function purpose calls (batch size ~5, concurrency ~3). Results are
// written to the shared toolkit exactly once via SetContractAnalysis.
func (e *Engine) runPhase1(ctx context.Context, idx *models.ProjectIndex, analyst *agent.Agent) error {
	e.report(1, 0, "structural analysis: building analysis hints")

	hints, err := analyzeProjectHints(ctx, analyst, idx)
	if err != nil {
		return fmt.Errorf("phase 1: analysis hints: %w", err)
	}

	functionIDs := functionChunkIDs(idx)
	e.report(1, 30, fmt.Sprintf("structural analysis: describing %d function purposes", len(functionIDs)))

	purposes, err := describeFunctionPurposes(ctx, analyst, idx, functionIDs)
	if err != nil {
		return fmt.Errorf("phase 1: function purposes: %w", err)
	}

	e.tools.SetContractAnalysis(&toolkit.ContractAnalysis{Hints: hints, Purposes: purposes})
	e.report(1, 100, "structural analysis complete")
	return nil
}

func functionChunkIDs(idx *models.ProjectIndex) []string {
	var ids []string
	for _, id := range idx.ChunkOrder {
		if c, ok := idx.Chunks[id]; ok && c.ChunkType == models.ChunkFunction {
			ids = append(ids, id)
		}
	}
	return ids
}

var hintsFieldExtractor = regexFieldListExtractor(map[string]*regexp.Regexp{
	"state_variables":        regexp.MustCompile(`(?is)state_variables"?\s*[:=]\s*\[([^\]]*)\]`),
	"conditional_thresholds": regexp.MustCompile(`(?is)conditional_thresholds"?\s*[:=]\s*\[([^\]]*)\]`),
	"dataflow_notes":         regexp.MustCompile(`(?is)dataflow_notes"?\s*[:=]\s*\[([^\]]*)\]`),
	"vulnerability_chains":   regexp.MustCompile(`(?is)vulnerability_chains"?\s*[:=]\s*\[([^\]]*)\]`),
})

// regexFieldListExtractor builds a jsonrepair.FieldExtractor that recovers
// string-array fields by name — the Analyst role's §4.9 step 10 fallback.
func regexFieldListExtractor(fields map[string]*regexp.Regexp) func(string) map[string]any {
	return func(text string) map[string]any {
		out := map[string]any{}
		found := false
		for name, re := range fields {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			found = true
			var items []any
			for _, part := range strings.Split(m[1], ",") {
				part = strings.Trim(strings.TrimSpace(part), `"'`)
				if part != "" {
					items = append(items, part)
				}
			}
			out[name] = items
		}
		if !found {
			return nil
		}
		return out
	}
}

func analyzeProjectHints(ctx context.Context, analyst *agent.Agent, idx *models.ProjectIndex) (models.AnalysisHints, error) {
	overview := indexer.GetProjectOverview(idx, 5000)
	prompt := fmt.Sprintf(
		"%s\n\nIdentify: state_variables (key mutable state), conditional_thresholds (numeric/time guards), "+
			"dataflow_notes (cross-function data flow of interest), vulnerability_chains (plausible multi-step "+
			"vulnerability sequences). Respond with a single JSON object with exactly those four array fields.",
		overview)

	raw, err := analyst.CallLLMWithTools(ctx, prompt, agent.LoopOptions{
		MaxRounds: 5, JSONMode: true, Stateless: true, CallerTag: "analyst",
	})
	if err != nil {
		return models.AnalysisHints{}, err
	}

	parsed := analyst.ParseJSON(raw, hintsFieldExtractor)
	return models.AnalysisHints{
		StateVariables:        toStringSlice(parsed.Value["state_variables"]),
		ConditionalThresholds: toStringSlice(parsed.Value["conditional_thresholds"]),
		DataflowNotes:         toStringSlice(parsed.Value["dataflow_notes"]),
		VulnerabilityChains:   toStringSlice(parsed.Value["vulnerability_chains"]),
	}, nil
}

func toStringSlice(v any) []string {
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

// describeFunctionPurposes batches functionIDs (spec §4.1: "batch size ~5,
// max concurrency ~3") and asks the Analyst for a one-sentence purpose per
// function, merging all batch results into one map.
func describeFunctionPurposes(ctx context.Context, analyst *agent.Agent, idx *models.ProjectIndex, functionIDs []string) (map[string]string, error) {
	batches := chunkStrings(functionIDs, phase1BatchSize)

	purposes := make(map[string]string, len(functionIDs))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(phase1MaxInFlight)
	g, gctx := errgroup.WithContext(ctx)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			result, err := describePurposeBatch(gctx, analyst, idx, batch)
			if err != nil {
				// A failed batch degrades to empty purposes for its
				// functions rather than failing the whole phase — later
				// phases treat a missing purpose as "unknown" already.
				return nil
			}
			mu.Lock()
			for id, p := range result {
				purposes[id] = p
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return purposes, nil
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func describePurposeBatch(ctx context.Context, analyst *agent.Agent, idx *models.ProjectIndex, batch []string) (map[string]string, error) {
	var b strings.Builder
	b.WriteString("Describe the purpose of each function below in one sentence.\n\n")
	for _, id := range batch {
		c := idx.Chunks[id]
		if c == nil {
			continue
		}
		fmt.Fprintf(&b, "// %s\n%s\n\n", id, c.Body)
	}
	b.WriteString("Respond with a single JSON object mapping each function id to its purpose sentence.")

	raw, err := analyst.CallLLMWithTools(ctx, b.String(), agent.LoopOptions{
		MaxRounds: 3, JSONMode: true, Stateless: true, CallerTag: "analyst",
	})
	if err != nil {
		return nil, err
	}

	parsed := analyst.ParseJSON(raw, nil)
	out := make(map[string]string, len(batch))
	for _, id := range batch {
		if p, ok := parsed.Value[id].(string); ok {
			out[id] = p
		}
	}
	return out, nil
}
