package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sui-sentry/auditengine/pkg/agent"
	"github.com/sui-sentry/auditengine/pkg/config"
	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/jsonrepair"
	"github.com/sui-sentry/auditengine/pkg/models"
)

// runPhase2 drives the Auditor agent over the indexed project (spec §4.1
// Phase 2): broad-analysis and/or targeted-analysis batched function scans,
// unioned and deduplicated by Finding.DedupKey (spec §9).
func (e *Engine) runPhase2(ctx context.Context, idx *models.ProjectIndex, auditor *agent.Agent, cfg *config.AuditConfig) ([]models.Finding, error) {
	e.report(2, 0, "raw vulnerability scan starting")

	functionIDs := functionChunkIDs(idx)
	concurrency := int64(cfg.Concurrency.MaxConcurrentFunctionAnalyses)
	if concurrency <= 0 {
		concurrency = phase1MaxInFlight
	}
	batchSize := phase1BatchSize

	seen := map[string]models.Finding{}
	var order []string
	var mu sync.Mutex

	merge := func(findings []models.Finding) {
		mu.Lock()
		defer mu.Unlock()
		for _, f := range findings {
			key := f.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = f
			order = append(order, key)
		}
	}

	if cfg.EnableBroadAnalysis {
		e.report(2, 10, "broad-analysis pass")
		findings, err := scanFunctions(ctx, auditor, idx, functionIDs, batchSize, concurrency, broadAnalysisPrompt)
		if err != nil {
			return nil, fmt.Errorf("phase 2: broad analysis: %w", err)
		}
		merge(findings)
	}

	if cfg.EnableTargetedAnalysis {
		for _, vulnType := range cfg.TargetedVulnTypes {
			e.report(2, 50, fmt.Sprintf("targeted-analysis pass: %s", vulnType))
			prompt := agent.AuditorTargetedPrompt(vulnType)
			findings, err := scanFunctions(ctx, auditor, idx, functionIDs, batchSize, concurrency, prompt)
			if err != nil {
				return nil, fmt.Errorf("phase 2: targeted analysis (%s): %w", vulnType, err)
			}
			merge(findings)
		}
	}

	out := make([]models.Finding, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}

	e.report(2, 100, fmt.Sprintf("raw vulnerability scan complete: %d findings", len(out)))
	return out, nil
}

const broadAnalysisPrompt = "Analyze the functions below for security vulnerabilities of any kind."

// scanFunctions groups functionIDs by module then chunks each module's
// group into batches of up to batchSize (spec §4.1 Phase 2: "N functions
// are grouped per LLM call"), runs promptPrefix against each batch with
// bounded concurrency, and returns every parsed Finding with its
// _phase2_context / _phase2_func_context annotations already attached.
func scanFunctions(ctx context.Context, auditor *agent.Agent, idx *models.ProjectIndex, functionIDs []string, batchSize int, concurrency int64, promptPrefix string) ([]models.Finding, error) {
	byModule := map[string][]string{}
	var modules []string
	for _, id := range functionIDs {
		c := idx.Chunks[id]
		if c == nil {
			continue
		}
		if _, ok := byModule[c.Module]; !ok {
			modules = append(modules, c.Module)
		}
		byModule[c.Module] = append(byModule[c.Module], id)
	}
	sort.Strings(modules)

	var batches [][]string
	for _, m := range modules {
		batches = append(batches, chunkStrings(byModule[m], batchSize)...)
	}

	var all []models.Finding
	var mu sync.Mutex

	sem := semaphore.NewWeighted(concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			findings, err := scanBatch(gctx, auditor, idx, batch, promptPrefix)
			if err != nil {
				return nil // a failed batch yields zero findings, never fails the phase
			}
			mu.Lock()
			all = append(all, findings...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

func scanBatch(ctx context.Context, auditor *agent.Agent, idx *models.ProjectIndex, batch []string, promptPrefix string) ([]models.Finding, error) {
	var b strings.Builder
	b.WriteString(promptPrefix)
	b.WriteString("\n\n")

	funcContexts := map[string]string{}
	for _, id := range batch {
		c := idx.Chunks[id]
		if c == nil {
			continue
		}
		fctx, err := indexer.GetFunctionContext(idx, id, 1, false)
		var contextBlob strings.Builder
		fmt.Fprintf(&contextBlob, "// %s\n%s\n", id, c.Body)
		if err == nil {
			for _, callee := range fctx.Callees {
				fmt.Fprintf(&contextBlob, "// callee %s\n%s\n", callee.ID, callee.Body)
			}
			for _, caller := range fctx.Callers {
				fmt.Fprintf(&contextBlob, "// caller %s: %s\n", caller.ID, caller.Signature)
			}
		}
		funcContexts[id] = contextBlob.String()
		b.WriteString(contextBlob.String())
		b.WriteString("\n")
	}

	b.WriteString("Respond with a JSON array of findings. Each object must include: function (the function id above), " +
		"title, severity (critical|high|medium|low|advisory), category, description, evidence (copied verbatim from the " +
		"source, never paraphrased), recommendation, confidence (0-100).")

	raw, err := auditor.CallLLMWithTools(ctx, b.String(), agent.LoopOptions{
		MaxRounds: 5, JSONMode: true, Stateless: true, CallerTag: "auditor",
	})
	if err != nil {
		return nil, err
	}

	parsed := auditor.ParseJSON(raw, nil)
	entries := findingEntries(parsed)

	findings := make([]models.Finding, 0, len(entries))
	for _, e := range entries {
		functionID, _ := e["function"].(string)
		c := idx.Chunks[functionID]

		f := models.Finding{
			ID:             uuid.NewString(),
			Title:          stringField(e, "title"),
			Severity:       models.Severity(stringField(e, "severity")),
			Category:       stringField(e, "category"),
			Description:    stringField(e, "description"),
			Evidence:       stringField(e, "evidence"),
			Recommendation: stringField(e, "recommendation"),
			Confidence:     intField(e, "confidence"),
			Phase2Context:  funcContexts[functionID],
		}
		if c != nil {
			f.Location = models.Location{Module: c.Module, Function: c.Name}
			f.ModuleName = c.Module
			f.Phase2FuncContext = c.Body
		} else if functionID != "" {
			f.Location = models.Location{Function: functionID}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// findingEntries extracts the per-finding objects from a parsed Auditor
// response, whether it arrived as a top-level array (the normal case) or
// as a single object (the conservative-default fallback, wrapped here so
// callers always get a slice).
func findingEntries(r jsonrepair.Result) []map[string]any {
	if r.IsArray {
		out := make([]map[string]any, 0, len(r.Array))
		for _, el := range r.Array {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	if r.Value != nil {
		if arr, ok := r.Value["findings"].([]any); ok {
			out := make([]map[string]any, 0, len(arr))
			for _, el := range arr {
				if m, ok := el.(map[string]any); ok {
					out = append(out, m)
				}
			}
			return out
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}
