package model

import (
	"encoding/json"
	"time"
)

// ProjectStatus tracks the cache freshness of a project entry.
type ProjectStatus string

const (
	// StatusActive means the project was fetched within the staleness window.
	StatusActive ProjectStatus = "active"
	// StatusStale means the project needs a refresh (TTL expired or
	// explicitly invalidated by the filesystem watcher).
	StatusStale ProjectStatus = "stale"
	// StatusError means the last refresh attempt failed.
	StatusError ProjectStatus = "error"
)

// Project is a cached view of a user project and its deployment state.
//
// Status is derived, never independently authoritative: it must always be
// recomputable from LastFetched + TTL + explicit invalidation.
type Project struct {
	// ID is a stable string identifier, unique across the cache.
	ID string

	// Name is the human-readable project name.
	Name string

	// Path is the project's filesystem path. Unique per project.
	Path string

	// Status is the cached freshness state.
	Status ProjectStatus

	// LastFetched is when the project's artifact set was last populated
	// from authoritative state.
	LastFetched time.Time

	// ArtifactCount is derived from the owned artifact rows.
	ArtifactCount int
}

// Artifact is a cached view of a deployed artifact (skill, agent, command)
// owned by a project. Artifacts are deleted and replaced when the owning
// project is repopulated.
type Artifact struct {
	ID        string
	Name      string
	Type      string
	ProjectID string

	// DeployedVersion is the version written to disk under a profile root.
	DeployedVersion string

	// UpstreamVersion is the latest version known upstream. Empty until a
	// refresh has run against the artifact source.
	UpstreamVersion string

	// IsOutdated is derived: UpstreamVersion is known and differs from
	// DeployedVersion.
	IsOutdated bool
}

// Outdated reports whether an artifact with the given versions should be
// flagged as outdated. The single definition keeps the derivation identical
// on the populate and refresh paths.
func Outdated(deployed, upstream string) bool {
	return upstream != "" && upstream != deployed
}

// CacheMetadata is the singleton row tracking global cache state.
type CacheMetadata struct {
	LastRefresh   time.Time
	SchemaVersion int
}

// MarketplaceEntry is a cached marketplace listing. Payload carries the
// upstream response verbatim so callers can decode fields the cache does
// not model.
type MarketplaceEntry struct {
	ID          string
	Name        string
	Type        string
	URL         string
	Description string
	CachedAt    time.Time
	Payload     json.RawMessage
}
