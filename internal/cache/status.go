package cache

import (
	"context"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// Status aggregates cache health for observability by callers.
type Status struct {
	TotalProjects     int       `json:"total_projects"`
	StaleProjects     int       `json:"stale_projects"`
	TotalArtifacts    int       `json:"total_artifacts"`
	OutdatedArtifacts int       `json:"outdated_artifacts"`
	DatabaseSizeBytes int64     `json:"database_size_bytes"`
	OldestFetch       time.Time `json:"oldest_fetch,omitzero"`
	NewestFetch       time.Time `json:"newest_fetch,omitzero"`
	LastRefresh       time.Time `json:"last_refresh,omitzero"`
	SchemaVersion     int       `json:"schema_version"`

	// Degraded is set when a status query failed and counts are zeroed.
	// A degraded cache treats every project as implicitly stale.
	Degraded bool `json:"degraded,omitempty"`
}

// CacheStatus aggregates totals, fetch-time bounds, database size and the
// last global refresh time. A failed read degrades to a zeroed, Degraded
// status rather than an error.
func (m *Manager) CacheStatus(ctx context.Context) Status {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.log.Warn("status read degraded", "error", err)
		return Status{Degraded: true}
	}
	meta, err := m.store.Metadata(ctx)
	if err != nil {
		m.log.Warn("status metadata read degraded", "error", err)
		return Status{Degraded: true}
	}

	return Status{
		TotalProjects:     stats.TotalProjects,
		StaleProjects:     stats.StaleProjects,
		TotalArtifacts:    stats.TotalArtifacts,
		OutdatedArtifacts: stats.OutdatedArtifacts,
		DatabaseSizeBytes: m.store.FileSize(),
		OldestFetch:       stats.OldestFetch,
		NewestFetch:       stats.NewestFetch,
		LastRefresh:       meta.LastRefresh,
		SchemaVersion:     meta.SchemaVersion,
	}
}

// MarketplaceEntries lists cached marketplace entries, optionally filtered
// by type. Read failures degrade to an empty slice.
func (m *Manager) MarketplaceEntries(ctx context.Context, typeFilter string) []model.MarketplaceEntry {
	entries, err := m.store.ListMarketplaceEntries(ctx, typeFilter)
	if err != nil {
		m.log.Warn("marketplace list degraded", "error", err)
		return []model.MarketplaceEntry{}
	}
	return entries
}

// UpdateMarketplace writes a marketplace refresh batch, stamping each entry
// with the current time and pruning entries older than the marketplace TTL
// in the same pass. Returns the number of pruned entries.
func (m *Manager) UpdateMarketplace(ctx context.Context, entries []model.MarketplaceEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stamped := make([]model.MarketplaceEntry, len(entries))
	for i, e := range entries {
		e.CachedAt = now
		stamped[i] = e
	}

	pruned, err := m.store.UpsertMarketplaceEntries(ctx, stamped, now.Add(-m.marketTTL))
	if err != nil {
		m.log.Error("marketplace update failed", "entries", len(entries), "error", err)
		return 0, err
	}
	return pruned, nil
}

// IsMarketplaceStale reports whether the newest marketplace entry is older
// than the given TTL. An empty or unreadable marketplace cache is stale.
// The boundary is inclusive, matching project staleness.
func (m *Manager) IsMarketplaceStale(ctx context.Context, ttl time.Duration) bool {
	newest, err := m.store.NewestMarketplaceCachedAt(ctx)
	if err != nil {
		m.log.Warn("marketplace staleness degraded", "error", err)
		return true
	}
	if newest.IsZero() {
		return true
	}
	return m.now().Sub(newest) >= ttl
}
