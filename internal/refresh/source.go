package refresh

import (
	"context"
	"encoding/json"

	"github.com/roach88/quiver/internal/model"
)

// ArtifactSource is the upstream collaborator a refresh consults for
// current versions. Implementations (registry client, local filesystem
// reader) live outside the cache engine.
type ArtifactSource interface {
	// Fetch retrieves an artifact's current upstream form.
	Fetch(ctx context.Context, spec, artifactType string) (FetchResult, error)

	// CheckUpdates reports the latest upstream version for a cached
	// artifact. ok is false when upstream has no knowledge of it.
	CheckUpdates(ctx context.Context, artifact model.Artifact) (info UpdateInfo, ok bool, err error)
}

// FetchResult is the upstream form of one artifact.
type FetchResult struct {
	Name    string
	Type    string
	Version string
	Content json.RawMessage
}

// UpdateInfo describes the newest known upstream version of an artifact.
type UpdateInfo struct {
	LatestVersion string
}

// MarketplaceSource lists current marketplace entries. Optional: a Job
// without one skips marketplace refresh entirely.
type MarketplaceSource interface {
	ListEntries(ctx context.Context) ([]model.MarketplaceEntry, error)
}
