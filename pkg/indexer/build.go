package indexer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// Build walks a Move source tree rooted at dir and produces a ProjectIndex.
// It never fails on a single bad file — a file that can't be read or yields
// no module headers is simply skipped, since Phase 0 must still produce a
// usable (if degraded) index for the rest of the pipeline.
func Build(fsys fs.FS, dir string) (*models.ProjectIndex, error) {
	idx := &models.ProjectIndex{
		Modules: map[string]*models.ModuleInfo{},
		Chunks:  map[string]*models.CodeChunk{},
	}

	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".move") {
			return nil
		}
		raw, readErr := fs.ReadFile(fsys, path)
		if readErr != nil {
			return nil
		}
		for _, pm := range ParseSource(string(raw)) {
			mi := toModuleInfo(pm, path)
			idx.Modules[mi.QualifiedName()] = mi
			addChunks(idx, mi, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source tree %s: %w", dir, err)
	}

	sort.Strings(idx.ChunkOrder)
	idx.CallGraph = BuildCallGraph(idx)
	idx.Deps = models.NewDependencyResolver()
	return idx, nil
}

func toModuleInfo(pm *ParsedModule, path string) *models.ModuleInfo {
	mi := &models.ModuleInfo{
		Path:           path,
		Address:        pm.Address,
		Name:           pm.Name,
		Structs:        map[string]*models.StructInfo{},
		Functions:      map[string]*models.FunctionInfo{},
		Imports:        pm.Imports,
		Constants:      pm.Constants,
		StringLiterals: pm.Strings,
		RawContent:     pm.Raw,
	}
	for name, s := range pm.Structs {
		mi.Structs[name] = &models.StructInfo{
			Name:        s.Name,
			Abilities:   s.Abilities,
			IsHotPotato: s.IsHotPotato,
			FilePath:    path,
			StartLine:   s.StartLine,
			Body:        s.Body,
		}
	}
	for name, f := range pm.Functions {
		mi.Functions[name] = &models.FunctionInfo{
			Name:       f.Name,
			Module:     mi.QualifiedName(),
			Visibility: models.Visibility(f.Visibility),
			Generics:   f.Generics,
			Params:     f.Params,
			ReturnType: f.ReturnType,
			Body:       f.Body,
			Signature:  f.Signature,
			FilePath:   path,
			StartLine:  f.StartLine,
			EndLine:    f.EndLine,
		}
	}
	return mi
}

func addChunks(idx *models.ProjectIndex, mi *models.ModuleInfo, path string) {
	moduleChunkID := mi.QualifiedName()
	idx.Chunks[moduleChunkID] = &models.CodeChunk{
		ID:        moduleChunkID,
		ChunkType: models.ChunkModule,
		Module:    mi.QualifiedName(),
		Name:      mi.Name,
		Signature: "module " + moduleChunkID,
		Body:      mi.RawContent,
		FilePath:  path,
	}
	idx.ChunkOrder = append(idx.ChunkOrder, moduleChunkID)

	for name, s := range mi.Structs {
		id := mi.QualifiedName() + "::" + name
		idx.Chunks[id] = &models.CodeChunk{
			ID:         id,
			ChunkType:  models.ChunkStruct,
			Module:     mi.QualifiedName(),
			Name:       name,
			Signature:  structSignature(s),
			Body:       s.Body,
			FilePath:   path,
			RiskIndicators: models.RiskIndicators{
				"is_hot_potato": s.IsHotPotato,
			},
		}
		idx.ChunkOrder = append(idx.ChunkOrder, id)
	}

	for name, f := range mi.Functions {
		id := mi.QualifiedName() + "::" + name
		idx.Chunks[id] = &models.CodeChunk{
			ID:             id,
			ChunkType:      models.ChunkFunction,
			Module:         mi.QualifiedName(),
			Name:           name,
			Signature:      f.Signature,
			Body:           f.Body,
			Visibility:     f.Visibility,
			FilePath:       path,
			RiskIndicators: riskIndicatorsFor(f),
		}
		idx.ChunkOrder = append(idx.ChunkOrder, id)
	}
}

func structSignature(s *models.StructInfo) string {
	if len(s.Abilities) == 0 {
		return "struct " + s.Name
	}
	return fmt.Sprintf("struct %s has %s", s.Name, strings.Join(s.Abilities, ", "))
}

// riskIndicatorsFor applies cheap heuristic signals to a function body:
// does it touch coins/balances, does it mutate shared state, does it check
// a capability. These feed get_risky_functions and the call-graph summary;
// they are hints for prioritization, never a verdict.
func riskIndicatorsFor(f *models.FunctionInfo) models.RiskIndicators {
	body := strings.ToLower(f.Body)
	return models.RiskIndicators{
		"touches_funds":  strings.Contains(body, "coin<") || strings.Contains(body, "balance<") || strings.Contains(body, "::transfer"),
		"mutates_state":  strings.Contains(f.Signature, "&mut"),
		"checks_access":  strings.Contains(body, "cap:") || strings.Contains(body, "cap,") || strings.Contains(body, "assert!(") && strings.Contains(body, "owner"),
		"entry_point":    f.Visibility == models.VisibilityEntry,
		"has_generics":   len(f.Generics) > 0,
	}
}

// PathJoin is a tiny helper so callers building an fs.FS root + relative
// source directory don't need to import path/filepath themselves.
func PathJoin(elems ...string) string {
	return filepath.Join(elems...)
}
