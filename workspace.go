// workspace discovery: package.json workspaces (and pnpm-workspace.yaml)
// expanded into the list of runnable workspace ids.
//
// a workspace counts only if its directory has a package.json whose
// scripts include the configured worker script. ids are forward-slash
// paths relative to the repo root, in pattern order, de-duplicated.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	errNoPackageJSON = errors.New("no package.json found in root")
	errNoWorkspaces  = errors.New("no workspaces found")
)

// packageManifest is the subset of package.json wtui reads.
type packageManifest struct {
	Workspaces json.RawMessage   `json:"workspaces"`
	Scripts    map[string]string `json:"scripts"`
}

// workspacePatterns handles both the array form and yarn's
// {"packages": [...]} object form.
func (p packageManifest) workspacePatterns() []string {
	if len(p.Workspaces) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(p.Workspaces, &list); err == nil {
		return list
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(p.Workspaces, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

// discoverWorkspaces returns the workspaces for cfg.root. an empty
// result is errNoWorkspaces: the dashboard never opens without any.
func discoverWorkspaces(cfg *Config) ([]workspace, error) {
	root := cfg.root

	var ids []string
	if cfg.Workspace.AutoDetectWorkspaces {
		patterns, err := rootPatterns(root)
		if err != nil {
			return nil, err
		}
		for _, pattern := range patterns {
			for _, match := range expandPattern(root, pattern) {
				if isRunnableWorkspace(root, match, cfg.Process.Script) {
					ids = append(ids, match)
				}
			}
		}
	} else {
		for _, id := range cfg.Workspace.Workspaces {
			ids = append(ids, path.Clean(filepath.ToSlash(id)))
		}
	}

	var out []workspace
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] || slices.Contains(cfg.Workspace.ExcludeWorkspaces, id) {
			continue
		}
		seen[id] = true
		out = append(out, workspace{id: id, dir: filepath.Join(root, filepath.FromSlash(id))})
	}
	if len(out) == 0 {
		return nil, errNoWorkspaces
	}
	return out, nil
}

// rootPatterns collects workspace globs from package.json and, when
// present, pnpm-workspace.yaml.
func rootPatterns(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoPackageJSON
	}
	if err != nil {
		return nil, err
	}
	var pkg packageManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	patterns := pkg.workspacePatterns()

	pnpm, err := os.ReadFile(filepath.Join(root, "pnpm-workspace.yaml"))
	if err == nil {
		var manifest struct {
			Packages []string `yaml:"packages"`
		}
		if err := yaml.Unmarshal(pnpm, &manifest); err != nil {
			return nil, fmt.Errorf("parsing pnpm-workspace.yaml: %w", err)
		}
		patterns = append(patterns, manifest.Packages...)
	}
	return patterns, nil
}

// expandPattern supports the three shapes monorepos actually use:
// "dir/*" (direct children), "dir/**" (every directory below dir),
// and an exact path. negated patterns are ignored.
func expandPattern(root, pattern string) []string {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if pattern == "" || strings.HasPrefix(pattern, "!") {
		return nil
	}

	switch {
	case strings.Contains(pattern, "**"):
		base := strings.TrimSuffix(strings.SplitN(pattern, "**", 2)[0], "/")
		return walkDirs(root, base)
	case strings.HasSuffix(pattern, "/*"):
		base := strings.TrimSuffix(pattern, "/*")
		entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(base)))
		if err != nil {
			return nil
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() {
				out = append(out, path.Join(base, e.Name()))
			}
		}
		return out
	default:
		return []string{path.Clean(pattern)}
	}
}

// walkDirs lists every directory below base, skipping node_modules and
// dot directories. unreadable directories are skipped silently.
func walkDirs(root, base string) []string {
	start := filepath.Join(root, filepath.FromSlash(base))
	var out []string
	_ = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() || p == start {
			return nil
		}
		if d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		rel, err := filepath.Rel(root, p)
		if err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(out)
	return out
}

func isRunnableWorkspace(root, id, script string) bool {
	dir := filepath.Join(root, filepath.FromSlash(id))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var pkg packageManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

func workspaceIDs(workspaces []workspace) []workspaceID {
	ids := make([]workspaceID, len(workspaces))
	for i, ws := range workspaces {
		ids[i] = ws.id
	}
	return ids
}
