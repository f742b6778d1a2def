package watch

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultProfileRoots are the per-platform deployment subdirectories that
// scope invalidation keys.
var DefaultProfileRoots = []string{".claude", ".codex", ".gemini", ".cursor"}

// DefaultExtensions are the file types the watcher considers relevant.
var DefaultExtensions = []string{".md", ".json", ".yaml", ".yml", ".toml"}

// invKey identifies one pending invalidation. The zero value is the global
// key, used when a changed path resolves to no known project.
type invKey struct {
	projectID   string
	profileRoot string
}

var globalKey = invKey{}

// ProjectRef is the slice of project state the watcher needs for key
// resolution: a stable id and the project's filesystem path.
type ProjectRef struct {
	ID   string
	Path string
}

// relevance decides which raw events survive, and resolves surviving paths
// to invalidation keys. It is immutable after construction; SetProjects
// swaps the whole projects slice under the watcher's lock.
type relevance struct {
	manifest     string
	profileRoots map[string]struct{}
	extensions   map[string]struct{}
}

func newRelevance(manifest string, roots, exts []string) *relevance {
	r := &relevance{
		manifest:     filepath.Clean(manifest),
		profileRoots: make(map[string]struct{}, len(roots)),
		extensions:   make(map[string]struct{}, len(exts)),
	}
	if manifest == "" {
		r.manifest = ""
	}
	for _, root := range roots {
		r.profileRoots[root] = struct{}{}
	}
	for _, ext := range exts {
		r.extensions[strings.ToLower(ext)] = struct{}{}
	}
	return r
}

// accept reports whether the changed path is relevant: the global manifest
// file, or a recognized file type under a recognized profile-root subtree.
// Everything else is discarded at the source.
func (r *relevance) accept(path string) bool {
	clean := filepath.Clean(path)
	if r.manifest != "" && clean == r.manifest {
		return true
	}
	if r.profileRootOf(clean) == "" {
		return false
	}
	_, ok := r.extensions[strings.ToLower(filepath.Ext(clean))]
	return ok
}

// profileRootOf returns the first recognized profile-root segment of the
// path, or "" when none is present.
func (r *relevance) profileRootOf(path string) string {
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if _, ok := r.profileRoots[seg]; ok {
			return seg
		}
	}
	return ""
}

// resolve maps an accepted path to its invalidation key via longest-prefix
// match against the known project paths. The manifest and unresolvable
// paths map to the global key.
func (r *relevance) resolve(path string, projects []ProjectRef) invKey {
	clean := filepath.Clean(path)
	if r.manifest != "" && clean == r.manifest {
		return globalKey
	}

	best := ProjectRef{}
	for _, p := range projects {
		if !underPath(clean, p.Path) {
			continue
		}
		if len(p.Path) > len(best.Path) {
			best = p
		}
	}
	if best.ID == "" {
		return globalKey
	}
	return invKey{projectID: best.ID, profileRoot: r.profileRootOf(clean)}
}

// underPath reports whether path is base or inside base.
func underPath(path, base string) bool {
	base = filepath.Clean(base)
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

// sortProjects orders refs by descending path length so iteration finds the
// longest match first. Kept deterministic (path, then id) for tests.
func sortProjects(refs []ProjectRef) []ProjectRef {
	out := make([]ProjectRef, len(refs))
	copy(out, refs)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) > len(out[j].Path)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
