package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quiver/internal/cache"
	"github.com/roach88/quiver/internal/model"
	"github.com/roach88/quiver/internal/refresh"
)

// LockFileName is the per-project lock file recording the latest known
// upstream version of each artifact. Deploy tooling writes it; the CLI's
// refresh reads it in place of a network registry.
const LockFileName = ".quiver-lock.yaml"

// lockFile mirrors the on-disk lock format.
type lockFile struct {
	Artifacts map[string]string `yaml:"artifacts"` // artifact id -> version
}

// lockfileSource resolves upstream versions from each project's lock file.
// A missing lock file means upstream is unknown, not an error: the refresh
// still clears staleness without touching versions.
type lockfileSource struct {
	cache *cache.Manager
}

var _ refresh.ArtifactSource = (*lockfileSource)(nil)

func (s *lockfileSource) Fetch(ctx context.Context, spec, artifactType string) (refresh.FetchResult, error) {
	return refresh.FetchResult{}, fmt.Errorf("fetch %s: lock file source cannot fetch content", spec)
}

func (s *lockfileSource) CheckUpdates(ctx context.Context, a model.Artifact) (refresh.UpdateInfo, bool, error) {
	p, err := s.cache.Project(ctx, a.ProjectID)
	if err != nil {
		return refresh.UpdateInfo{}, false, fmt.Errorf("resolve project %s: %w", a.ProjectID, err)
	}

	lock, err := readLockFile(filepath.Join(p.Path, LockFileName))
	if err != nil {
		return refresh.UpdateInfo{}, false, err
	}
	if lock == nil {
		return refresh.UpdateInfo{}, false, nil
	}

	v, ok := lock.Artifacts[a.ID]
	if !ok || v == "" {
		return refresh.UpdateInfo{}, false, nil
	}
	return refresh.UpdateInfo{LatestVersion: v}, true, nil
}

// readLockFile parses the lock file at path. Returns nil without error
// when the file does not exist.
func readLockFile(path string) (*lockFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock file %s: %w", path, err)
	}

	var lock lockFile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse lock file %s: %w", path, err)
	}
	return &lock, nil
}
