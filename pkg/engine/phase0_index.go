package engine

import (
	"fmt"
	"os"

	"github.com/sui-sentry/auditengine/pkg/indexer"
	"github.com/sui-sentry/auditengine/pkg/models"
)

// runPhase0 builds the immutable ProjectIndex (spec §4.1 Phase 0). Indexer
// failures are per-file and already swallowed inside indexer.Build; a
// degraded or missing call graph never blocks the pipeline — its Status is
// reported in the Phase 0 progress message and stays on the index for any
// tool that needs to report "callgraph unavailable".
func (e *Engine) runPhase0(source string) (*models.ProjectIndex, error) {
	e.report(0, 0, "building project index")

	idx, err := indexer.Build(os.DirFS(source), ".")
	if err != nil {
		return nil, fmt.Errorf("phase 0: %w", err)
	}

	status := models.CallGraphNotBuilt
	if idx.CallGraph != nil {
		status = idx.CallGraph.Status
	}
	e.report(0, 100, fmt.Sprintf("index built: %d modules, %d chunks, callgraph=%s",
		len(idx.Modules), len(idx.Chunks), status))

	return idx, nil
}
