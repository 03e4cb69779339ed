package indexer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sui-sentry/auditengine/pkg/models"
)

// moveToml is the slice of Move.toml we care about: the [dependencies]
// table, where each entry names a package and (usually) a git source.
type moveToml struct {
	Dependencies map[string]moveDependency `toml:"dependencies"`
}

type moveDependency struct {
	Git   string `toml:"git"`
	Rev   string `toml:"rev"`
	Local string `toml:"local"`
}

var nonWordPattern = regexp.MustCompile(`[^A-Za-z0-9_.]`)

// cacheKey path-escapes "<git_url>_<rev>" into a directory-safe string, per
// spec §4.2's dependency cache keying.
func cacheKey(gitURL, rev string) string {
	raw := gitURL + "_" + rev
	return nonWordPattern.ReplaceAllString(raw, "_")
}

// ResolveDependencies parses tomlPath's [dependencies] table and locates
// each one under cacheDir, keyed by cacheKey(git, rev). A dependency
// declared with a "local" path is resolved directly. When an exact
// <git_url>_<rev> cache directory isn't found, it fuzzy-matches by the
// revision string alone — the rev often uniquely identifies the package
// even when the git URL was mirrored or normalized differently between
// runs.
func ResolveDependencies(tomlPath, cacheDir string) (*models.DependencyResolver, error) {
	resolver := models.NewDependencyResolver()

	raw, err := os.ReadFile(tomlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return resolver, nil
		}
		return nil, err
	}

	var parsed moveToml
	if err := toml.Unmarshal(raw, &parsed); err != nil {
		return resolver, nil // malformed Move.toml never blocks the rest of the pipeline
	}

	cacheEntries, _ := os.ReadDir(cacheDir)

	for name, dep := range parsed.Dependencies {
		if dep.Local != "" {
			resolver.Resolved[name] = filepath.Join(filepath.Dir(tomlPath), dep.Local)
			continue
		}
		if dep.Git == "" {
			continue
		}

		want := cacheKey(dep.Git, dep.Rev)
		if path, ok := exactCacheMatch(cacheEntries, cacheDir, want); ok {
			resolver.Resolved[name] = path
			continue
		}
		if dep.Rev != "" {
			if path, ok := fuzzyRevMatch(cacheEntries, cacheDir, dep.Rev); ok {
				resolver.Resolved[name] = path
			}
		}
	}
	return resolver, nil
}

func exactCacheMatch(entries []os.DirEntry, cacheDir, want string) (string, bool) {
	for _, e := range entries {
		if e.IsDir() && e.Name() == want {
			return filepath.Join(cacheDir, e.Name()), true
		}
	}
	return "", false
}

func fuzzyRevMatch(entries []os.DirEntry, cacheDir, rev string) (string, bool) {
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), rev) {
			return filepath.Join(cacheDir, e.Name()), true
		}
	}
	return "", false
}
